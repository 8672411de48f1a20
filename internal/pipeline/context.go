package pipeline

// Context is the per-request business scope threaded explicitly through the
// pipeline: which business tenant is transacting, the acting agent or
// subscriber, and the correlation id tying log lines to one request.
type Context struct {
	BusinessID    string
	AgentID       string
	CorrelationID string
}
