package audit

import "time"

// TopicQueryExecuted is the event bus topic the chat loop publishes each
// executed tool call on. The payload is a QueryExecuted value.
const TopicQueryExecuted = "query.executed"

// Status is the outcome of an audited query.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// QueryExecuted is published once per run_readonly_query invocation.
type QueryExecuted struct {
	ConversationID string
	SQL            string
	RowCount       int64
	// Failed marks an error outcome. ErrorCode may be zero for engines that
	// only report a SQLSTATE.
	Failed       bool
	ErrorCode    int
	ErrorMessage string
	Duration     time.Duration
	At           time.Time
}

// Entry is one row of the query audit log. Entries are append-only.
type Entry struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SQL            string    `json:"sql"`
	Status         Status    `json:"status"`
	RowCount       int64     `json:"row_count"`
	ErrorCode      *int      `json:"error_code,omitempty"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}
