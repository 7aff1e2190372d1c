package executor

import (
	"github.com/itsneelabh/gorag/core"
)

// CombineResults flattens the successful results of a batch into a single
// context item list, in adapter order then item order. Each item is
// enriched with provenance metadata: the adapter it came from, how long the
// call took, and the request's correlation identifiers.
//
// Identifier keys are only added when the result carries an execution
// context, and optional identifiers are omitted entirely when empty rather
// than set to empty values, so downstream consumers can test key presence.
func CombineResults(results []core.AdapterResult) []core.ContextItem {
	var combined []core.ContextItem

	for _, result := range results {
		if !result.Success {
			continue
		}
		for _, item := range result.Data {
			enriched := make(core.ContextItem, len(item)+6)
			for k, v := range item {
				enriched[k] = v
			}

			enriched["adapter_name"] = result.AdapterName
			enriched["execution_time"] = result.ExecutionTime

			if ec := result.Context; ec != nil {
				enriched["request_id"] = ec.RequestID
				if ec.UserID != "" {
					enriched["user_id"] = ec.UserID
				}
				if ec.TraceID != "" {
					enriched["trace_id"] = ec.TraceID
				}
				if ec.SessionID != "" {
					enriched["session_id"] = ec.SessionID
				}
				if ec.CorrelationID != "" {
					enriched["correlation_id"] = ec.CorrelationID
				}
			}

			combined = append(combined, enriched)
		}
	}

	return combined
}
