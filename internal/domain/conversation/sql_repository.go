package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLRepository stores turns in the conversation_turn table of the app database.
type SQLRepository struct {
	db *sql.DB
}

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Load(ctx context.Context, id string) ([]Turn, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT role, text, invocation_json, result_json, created_at
		FROM conversation_turn
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Turn, 0)
	for rows.Next() {
		var (
			t         Turn
			role      string
			invRaw    sql.NullString
			resultRaw sql.NullString
			createdAt string
		)
		if err := rows.Scan(&role, &t.Text, &invRaw, &resultRaw, &createdAt); err != nil {
			return nil, err
		}
		t.Role = Role(role)
		if invRaw.Valid {
			var inv Invocation
			if err := json.Unmarshal([]byte(invRaw.String), &inv); err != nil {
				return nil, fmt.Errorf("decode invocation: %w", err)
			}
			t.Invocation = &inv
		}
		if resultRaw.Valid {
			t.Result = json.RawMessage(resultRaw.String)
		}
		if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("decode created_at: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLRepository) Append(ctx context.Context, id string, turns []Turn) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq) + 1, 0) FROM conversation_turn WHERE conversation_id = ?`, id,
	).Scan(&next); err != nil {
		return err
	}

	for i, t := range turns {
		var invJSON, resultJSON any
		if t.Invocation != nil {
			b, err := json.Marshal(t.Invocation)
			if err != nil {
				return fmt.Errorf("encode invocation: %w", err)
			}
			invJSON = string(b)
		}
		if len(t.Result) > 0 {
			resultJSON = string(t.Result)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_turn (
				conversation_id, seq, role, text, invocation_json, result_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, next+i, string(t.Role), t.Text, invJSON, resultJSON,
			t.CreatedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLRepository) Clear(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM conversation_turn WHERE conversation_id = ?`, id)
	return err
}
