package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/matiasleandrokruk/moviegpt/internal/infra/metrics"
	"github.com/matiasleandrokruk/moviegpt/internal/infra/moviedb"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000

	DefaultTimeout = 15 * time.Second
)

// ClampLimit maps 0 to DefaultLimit and bounds everything else to [1, MaxLimit].
func ClampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultLimit
	case limit < 1:
		return 1
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Config tunes an Executor.
type Config struct {
	Driver  string        // moviedb driver name, selects the guard dialect
	Timeout time.Duration // per-query deadline, DefaultTimeout when zero
}

// Executor runs guarded read-only SQL against the movie database.
// Each call checks out its own connection and returns it before Execute returns.
type Executor struct {
	db      *sql.DB
	dialect Dialect
	timeout time.Duration
	log     zerolog.Logger
}

func NewExecutor(db *sql.DB, cfg Config, log zerolog.Logger) *Executor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{db: db, dialect: DialectFor(cfg.Driver), timeout: timeout, log: log}
}

// Execute runs sqlText and collects at most ClampLimit(limit) rows.
// It never returns a Go error: every failure is a ToolResult Failure.
// The query keeps running if ctx is cancelled; only the executor's own timeout
// interrupts it.
func (e *Executor) Execute(ctx context.Context, sqlText string, limit int) ToolResult {
	start := time.Now()
	limit = ClampLimit(limit)

	if err := CheckReadOnly(sqlText, e.dialect); err != nil {
		metrics.RecordQueryExecution("rejected", time.Since(start))
		e.log.Warn().Err(err).Str("sql", sqlText).Msg("query rejected")
		return Failed(CodeNotReadOnly, err.Error(), sqlText)
	}

	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	res := e.run(qctx, sqlText, limit)

	status := "success"
	if !res.OK() {
		status = "error"
	}
	metrics.RecordQueryExecution(status, time.Since(start))
	ev := e.log.Debug().Str("sql", sqlText).Str("status", status).Dur("elapsed", time.Since(start))
	if res.OK() {
		ev = ev.Int("rows", res.Success.RowCount).Bool("truncated", res.Success.Truncated)
	} else {
		ev = ev.Int("code", res.Failure.Code).Str("error", res.Failure.Message)
	}
	ev.Msg("query executed")
	return res
}

func (e *Executor) run(ctx context.Context, sqlText string, limit int) ToolResult {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return failure(ctx, err, CodeUnavailable, sqlText)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return failure(ctx, err, CodeUnknown, sqlText)
	}
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return failure(ctx, err, CodeUnknown, sqlText)
	}
	names := columnKeys(cols)

	out := Success{Columns: names, Rows: make([]map[string]any, 0, min(limit, 64))}
	for rows.Next() {
		if len(out.Rows) == limit {
			out.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return failure(ctx, err, CodeUnknown, sqlText)
		}
		row := make(map[string]any, len(cols))
		for i, v := range vals {
			row[names[i]] = NormalizeColumn(cols[i].DatabaseTypeName(), v)
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return failure(ctx, err, CodeUnknown, sqlText)
	}
	return Succeeded(out)
}

// columnKeys returns row map keys; repeated names get a numeric suffix
// ("id", "id_2") so no column is dropped.
func columnKeys(cols []*sql.ColumnType) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name()
	}
	return uniqueKeys(names)
}

// uniqueKeys renames repeats with the lowest free suffix. A suffix never takes
// a name that some other column already carries.
func uniqueKeys(names []string) []string {
	raw := make(map[string]bool, len(names))
	for _, n := range names {
		raw[n] = true
	}
	taken := make(map[string]bool, len(names))
	out := make([]string, len(names))
	for i, name := range names {
		key := name
		for n := 2; taken[key] || (key != name && raw[key]); n++ {
			key = name + "_" + strconv.Itoa(n)
		}
		taken[key] = true
		out[i] = key
	}
	return out
}

// failure keeps the engine's own code and message when it has them.
func failure(ctx context.Context, err error, fallback int, sqlText string) ToolResult {
	if code, state, msg, ok := moviedb.EngineError(err); ok {
		return ToolResult{Failure: &QueryError{Code: code, SQLState: state, Message: msg, SQL: sqlText}}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Failed(CodeTimeout, fmt.Sprintf("query exceeded its time limit: %v", err), sqlText)
	}
	return Failed(fallback, err.Error(), sqlText)
}
