package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/matiasleandrokruk/moviegpt/internal/infra/eventbus"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 50

var ErrNilEvent = errors.New("audit: nil event")

// createdAtLayout is fixed width so created_at sorts chronologically as text.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

// Service writes and reads the query_audit table.
// All operations are append-only; no updates or deletes are supported.
type Service struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

func NewService(db *sql.DB, log zerolog.Logger) *Service {
	return &Service{db: db, log: log, now: time.Now}
}

// Log appends one audit entry built from evt.
func (s *Service) Log(ctx context.Context, evt *QueryExecuted) (*Entry, error) {
	if evt == nil {
		return nil, ErrNilEvent
	}
	at := evt.At
	if at.IsZero() {
		at = s.now()
	}
	e := &Entry{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: evt.ConversationID,
		SQL:            evt.SQL,
		Status:         StatusSuccess,
		RowCount:       evt.RowCount,
		DurationMS:     evt.Duration.Milliseconds(),
		CreatedAt:      at.UTC(),
	}
	if evt.Failed || evt.ErrorCode != 0 {
		code, msg := evt.ErrorCode, evt.ErrorMessage
		e.Status = StatusError
		e.RowCount = 0
		e.ErrorCode = &code
		e.ErrorMessage = &msg
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_audit
			(id, conversation_id, sql_text, status, row_count, error_code, error_message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ConversationID, e.SQL, string(e.Status), e.RowCount,
		e.ErrorCode, e.ErrorMessage, e.DurationMS, e.CreatedAt.Format(createdAtLayout))
	if err != nil {
		return nil, err
	}
	return e, nil
}

// List returns the most recent entries for a conversation, newest first.
// An empty conversationID lists across all conversations.
func (s *Service) List(ctx context.Context, conversationID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sql_text, status, row_count, error_code, error_message, duration_ms, created_at
		FROM query_audit
		WHERE ? = '' OR conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, conversationID, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*Entry, 0)
	for rows.Next() {
		var (
			e         Entry
			status    string
			code      sql.NullInt64
			msg       sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.SQL, &status, &e.RowCount,
			&code, &msg, &e.DurationMS, &createdAt); err != nil {
			return nil, err
		}
		e.Status = Status(status)
		if code.Valid {
			c := int(code.Int64)
			e.ErrorCode = &c
		}
		if msg.Valid {
			m := msg.String
			e.ErrorMessage = &m
		}
		if e.CreatedAt, err = time.Parse(createdAtLayout, createdAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Consume writes every QueryExecuted received on events until the channel
// closes or ctx ends. Write failures are logged and do not stop the loop.
func (s *Service) Consume(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			qe, ok := evt.Payload.(QueryExecuted)
			if !ok {
				s.log.Warn().Str("topic", evt.Topic).Msg("audit: unexpected payload type")
				continue
			}
			if _, err := s.Log(context.WithoutCancel(ctx), &qe); err != nil {
				s.log.Error().Err(err).Str("conversation_id", qe.ConversationID).Msg("audit: write failed")
			}
		}
	}
}
