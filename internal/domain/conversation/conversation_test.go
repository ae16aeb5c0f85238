package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matiasleandrokruk/moviegpt/internal/infra/sqlite"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func inv(id, sqlText string) Invocation {
	args, _ := json.Marshal(map[string]any{"sql": sqlText})
	return Invocation{ID: id, Name: "run_readonly_query", Arguments: args}
}

// oneRound is a complete loop with a single tool round.
func oneRound(question, sqlText, answer string) []Turn {
	call := inv("call-1", sqlText)
	return []Turn{
		UserTurn(question, t0),
		ModelInvocation(call, t0.Add(time.Second)),
		ToolResult(call, json.RawMessage(`{"rows":[],"row_count":0,"truncated":false}`), t0.Add(2*time.Second)),
		ModelText(answer, t0.Add(3*time.Second)),
	}
}

func TestValidatePairing(t *testing.T) {
	t.Parallel()

	if err := ValidatePairing(oneRound("q", "SELECT 1", "a")); err != nil {
		t.Fatalf("valid history rejected: %v", err)
	}

	a, b := inv("a", "SELECT 1"), inv("b", "SELECT 2")
	bad := map[string][]Turn{
		"tool first":        {ToolResult(a, nil, t0)},
		"mismatched id":     {UserTurn("q", t0), ModelInvocation(a, t0), ToolResult(b, nil, t0)},
		"tool after user":   {UserTurn("q", t0), ToolResult(a, nil, t0)},
		"unanswered call":   {UserTurn("q", t0), ModelInvocation(a, t0), ModelText("x", t0)},
		"trailing call":     {UserTurn("q", t0), ModelInvocation(a, t0)},
		"tool without call": {UserTurn("q", t0), ModelInvocation(a, t0), {Role: RoleTool}},
	}
	for name, turns := range bad {
		if err := ValidatePairing(turns); !errors.Is(err, ErrInvalidPairing) {
			t.Errorf("%s: ValidatePairing() = %v; want ErrInvalidPairing", name, err)
		}
	}
}

func TestView_HidesToolTurnsAndSummarizesQueries(t *testing.T) {
	t.Parallel()

	got := View(oneRound("top rated action movie", "SELECT title FROM movies", "The Dark Knight"))
	want := []HistoryEntry{
		{ID: "0", Type: "user", Text: "top rated action movie", Timestamp: t0.UnixMilli()},
		{ID: "1", Type: "assistant", Text: "[query] SELECT title FROM movies", Timestamp: t0.Add(time.Second).UnixMilli()},
		{ID: "2", Type: "assistant", Text: "The Dark Knight", Timestamp: t0.Add(3 * time.Second).UnixMilli()},
	}
	if len(got) != len(want) {
		t.Fatalf("View() len = %d; want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("View()[%d] = %+v; want %+v", i, got[i], want[i])
		}
	}
}

func TestNormalizeID(t *testing.T) {
	t.Parallel()

	if NormalizeID("  ") != DefaultID || NormalizeID(" abc ") != "abc" {
		t.Fatal("NormalizeID mapping wrong")
	}
}

func TestStore_CommitAndHistory(t *testing.T) {
	t.Parallel()

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := NewStore(repo)

			sess, err := store.Acquire(ctx, "c1")
			if err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}
			if err := sess.Commit(ctx, oneRound("q1", "SELECT 1", "a1")...); err != nil {
				t.Fatalf("Commit() error = %v", err)
			}
			sess.Release()

			sess, err = store.Acquire(ctx, "c1")
			if err != nil {
				t.Fatalf("second Acquire() error = %v", err)
			}
			if got := len(sess.History()); got != 4 {
				t.Fatalf("history len at acquire = %d; want 4", got)
			}
			if err := sess.Commit(ctx, UserTurn("q2", t0), ModelText("a2", t0)); err != nil {
				t.Fatalf("Commit() error = %v", err)
			}
			sess.Release()

			turns, err := store.History(ctx, "c1")
			if err != nil {
				t.Fatalf("History() error = %v", err)
			}
			if len(turns) != 6 || turns[5].Text != "a2" || turns[2].Invocation.ID != "call-1" {
				t.Fatalf("History() = %+v", turns)
			}
			if !turns[0].CreatedAt.Equal(t0) {
				t.Fatalf("CreatedAt = %v; want %v", turns[0].CreatedAt, t0)
			}

			other, _ := store.History(ctx, "c2")
			if len(other) != 0 {
				t.Fatalf("other conversation has %d turns", len(other))
			}

			if err := store.Clear(ctx, "c1"); err != nil {
				t.Fatalf("Clear() error = %v", err)
			}
			turns, _ = store.History(ctx, "c1")
			if len(turns) != 0 {
				t.Fatalf("history after Clear = %d turns", len(turns))
			}
		})
	}
}

func TestSession_CommitRejectsBrokenPairing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepository()
	sess, err := NewStore(repo).Acquire(ctx, "c")
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Release()

	err = sess.Commit(ctx, UserTurn("q", t0), ModelInvocation(inv("x", "SELECT 1"), t0))
	if !errors.Is(err, ErrInvalidPairing) {
		t.Fatalf("Commit() error = %v; want ErrInvalidPairing", err)
	}
	if turns, _ := repo.Load(ctx, "c"); len(turns) != 0 {
		t.Fatalf("rejected commit wrote %d turns", len(turns))
	}
}

func TestSession_ReleaseTwiceAndCommitAfterRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sess, err := NewStore(NewMemoryRepository()).Acquire(ctx, "c")
	if err != nil {
		t.Fatal(err)
	}
	sess.Release()
	sess.Release()
	if err := sess.Commit(ctx, UserTurn("q", t0)); !errors.Is(err, ErrSessionReleased) {
		t.Fatalf("Commit after Release = %v; want ErrSessionReleased", err)
	}
}

func TestStore_SameSessionSerialized(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore(NewMemoryRepository())

	first, err := store.Acquire(ctx, "shared")
	if err != nil {
		t.Fatal(err)
	}

	acquired := make(chan *Session)
	go func() {
		s, err := store.Acquire(ctx, "shared")
		if err != nil {
			t.Errorf("blocked Acquire() error = %v", err)
			close(acquired)
			return
		}
		acquired <- s
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire on the same session did not wait")
	case <-time.After(50 * time.Millisecond):
	}

	if err := first.Commit(ctx, UserTurn("q", t0), ModelText("a", t0)); err != nil {
		t.Fatal(err)
	}
	first.Release()

	select {
	case second := <-acquired:
		if second == nil {
			t.Fatal("second Acquire failed")
		}
		if len(second.History()) != 2 {
			t.Fatalf("second session saw %d turns; want 2", len(second.History()))
		}
		second.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("second Acquire never proceeded")
	}
}

func TestStore_DifferentSessionsParallel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore(NewMemoryRepository())

	a, err := store.Acquire(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Release()

	done := make(chan error, 1)
	go func() {
		b, err := store.Acquire(ctx, "b")
		if err == nil {
			b.Release()
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Acquire(b) error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire(b) blocked behind session a")
	}
}

func TestStore_AcquireHonoursContext(t *testing.T) {
	t.Parallel()

	store := NewStore(NewMemoryRepository())
	held, err := store.Acquire(context.Background(), "c")
	if err != nil {
		t.Fatal(err)
	}
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := store.Acquire(ctx, "c"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire() error = %v; want DeadlineExceeded", err)
	}
	if _, err := store.Acquire(context.Background(), ""); !errors.Is(err, ErrEmptyID) {
		t.Fatalf("Acquire(\"\") error = %v; want ErrEmptyID", err)
	}
}

func TestStore_ConcurrentCommitsKeepOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore(NewMemoryRepository())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := store.Acquire(ctx, "busy")
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			defer sess.Release()
			if err := sess.Commit(ctx, oneRound("q", "SELECT 1", "a")...); err != nil {
				t.Errorf("Commit() error = %v", err)
			}
		}()
	}
	wg.Wait()

	turns, _ := store.History(ctx, "busy")
	if len(turns) != 80 {
		t.Fatalf("history len = %d; want 80", len(turns))
	}
	if err := ValidatePairing(turns); err != nil {
		t.Fatalf("interleaved history: %v", err)
	}
	if len(store.locks) != 0 {
		t.Fatalf("lock table not drained: %d entries", len(store.locks))
	}
}

func repositories(t *testing.T) map[string]Repository {
	t.Helper()
	return map[string]Repository{
		"memory": NewMemoryRepository(),
		"sql":    NewSQLRepository(openAppDB(t)),
	}
}

func openAppDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.NewDB(":memory:")
	if err != nil {
		t.Fatalf("sqlite.NewDB failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := sqlite.MigrateUp(context.Background(), db); err != nil {
		t.Fatalf("sqlite.MigrateUp failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
