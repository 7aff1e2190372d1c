package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/itsneelabh/gorag/core"
	"github.com/itsneelabh/gorag/resilience"
)

// RedisAdapter retrieves documents stored as JSON in a namespaced redis
// list. It suits corpora that are written by an ingestion pipeline and read
// by the retrieval path.
type RedisAdapter struct {
	name       string
	client     *redis.Client
	namespace  string
	maxResults int
	logger     core.Logger
}

// RedisAdapterOptions configures the redis adapter.
type RedisAdapterOptions struct {
	Name      string
	RedisURL  string
	Namespace string
	// MaxResults caps a single retrieval. Zero means no cap.
	MaxResults int
	Logger     core.Logger
	// Retry overrides the connection validation retry policy.
	Retry *resilience.RetryConfig
}

// NewRedisAdapter creates a redis adapter and validates connectivity with a
// retried PING.
func NewRedisAdapter(opts RedisAdapterOptions) (*RedisAdapter, error) {
	if opts.Logger == nil {
		opts.Logger = &core.NoOpLogger{}
	}
	if opts.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required: %w", core.ErrInvalidConfiguration)
	}

	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		opts.Logger.Error("Failed to parse redis URL", map[string]interface{}{
			"operation": "redis_adapter_init",
			"adapter":   opts.Name,
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("invalid redis URL: %w", core.ErrInvalidConfiguration)
	}

	client := redis.NewClient(redisOpt)

	// Transient startup failures (redis still booting, DNS lag) are
	// retried before giving up
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err = resilience.Retry(ctx, opts.Retry, func() error {
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		defer pingCancel()
		return client.Ping(pingCtx).Err()
	})
	if err != nil {
		_ = client.Close()
		opts.Logger.Error("Failed to connect to redis", map[string]interface{}{
			"operation": "redis_adapter_init",
			"adapter":   opts.Name,
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("failed to connect to redis: %w", core.ErrConnectionFailed)
	}

	namespace := opts.Namespace
	if namespace == "" {
		namespace = "gorag:docs"
	}

	opts.Logger.Info("Redis adapter connected", map[string]interface{}{
		"operation": "redis_adapter_connected",
		"adapter":   opts.Name,
		"namespace": namespace,
	})

	return &RedisAdapter{
		name:       opts.Name,
		client:     client,
		namespace:  namespace,
		maxResults: opts.MaxResults,
		logger:     opts.Logger,
	}, nil
}

// documentsKey is the list all documents live under.
func (r *RedisAdapter) documentsKey() string {
	return r.namespace + ":documents"
}

// AddDocument appends a document to the corpus list.
func (r *RedisAdapter) AddDocument(ctx context.Context, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := r.client.RPush(ctx, r.documentsKey(), data).Err(); err != nil {
		return fmt.Errorf("failed to store document: %w", core.ErrRequestFailed)
	}
	return nil
}

// GetRelevantContext loads the corpus and returns documents matching the
// query terms, capped at MaxResults.
func (r *RedisAdapter) GetRelevantContext(ctx context.Context, query string, req *core.RetrievalRequest) ([]core.ContextItem, error) {
	raw, err := r.client.LRange(ctx, r.documentsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", core.ErrRequestFailed)
	}

	terms := queryTerms(query)
	var items []core.ContextItem

	for _, entry := range raw {
		var doc Document
		if err := json.Unmarshal([]byte(entry), &doc); err != nil {
			r.logger.Warn("Skipping malformed document", map[string]interface{}{
				"operation": "redis_retrieval",
				"adapter":   r.name,
				"error":     err.Error(),
			})
			continue
		}
		if matchScore(doc.Content, terms) == 0 {
			continue
		}

		item := core.ContextItem{
			"content": doc.Content,
			"source":  r.name,
		}
		if doc.ID != "" {
			item["document_id"] = doc.ID
		}
		for k, v := range doc.Metadata {
			item[k] = v
		}
		items = append(items, item)

		if r.maxResults > 0 && len(items) >= r.maxResults {
			break
		}
	}

	fields := map[string]interface{}{
		"operation": "redis_retrieval",
		"adapter":   r.name,
		"scanned":   len(raw),
		"matched":   len(items),
	}
	if req != nil {
		fields["request_id"] = req.RequestID
	}
	r.logger.Debug("Redis retrieval complete", fields)
	return items, nil
}

// Close releases the redis connection.
func (r *RedisAdapter) Close() error {
	return r.client.Close()
}
