package core

// AdapterResult is the uniform outcome of one adapter invocation. Exactly
// one of Data/Error is meaningful: Success true means Data holds retrieved
// items and Error is empty; Success false means Error describes the failure
// and Data is nil.
type AdapterResult struct {
	AdapterName string `json:"adapter_name"`
	Success     bool   `json:"success"`

	// Data holds the retrieved context items on success.
	Data []ContextItem `json:"data,omitempty"`

	// Error holds a human-readable failure description on failure.
	Error string `json:"error,omitempty"`

	// ExecutionTime is the wall-clock duration of the call in seconds.
	// Timed-out calls report the configured timeout, not the elapsed time
	// at detection.
	ExecutionTime float64 `json:"execution_time"`

	// Context is the execution context the call ran under, when known.
	Context *ExecutionContext `json:"-"`
}

// SuccessResult builds a successful result.
func SuccessResult(name string, data []ContextItem, executionTime float64, execCtx *ExecutionContext) AdapterResult {
	return AdapterResult{
		AdapterName:   name,
		Success:       true,
		Data:          data,
		ExecutionTime: executionTime,
		Context:       execCtx,
	}
}

// FailureResult builds a failed result.
func FailureResult(name string, errMsg string, executionTime float64, execCtx *ExecutionContext) AdapterResult {
	return AdapterResult{
		AdapterName:   name,
		Success:       false,
		Error:         errMsg,
		ExecutionTime: executionTime,
		Context:       execCtx,
	}
}
