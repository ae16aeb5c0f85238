package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matiasleandrokruk/moviegpt/pkg/auth"
)

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

// isolateEnv points every data path into a temp dir.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("MOVIEGPT_CONFIG", "")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", filepath.Join(dir, "movies", "movies.db"))
	t.Setenv("APP_DB_PATH", filepath.Join(dir, "app", "moviegpt.db"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("JWT_SECRET", "")
	return dir
}

func TestRun_Version(t *testing.T) {
	code, out, _ := runCLI(t, "", "version")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.HasPrefix(out, "moviegpt version ") {
		t.Fatalf("output = %q", out)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	code, _, errOut := runCLI(t, "", "bogus")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(errOut, "unknown command") {
		t.Fatalf("stderr = %q", errOut)
	}
}

func TestRun_HashSecret(t *testing.T) {
	for name, tc := range map[string]struct {
		args  []string
		stdin string
	}{
		"argument": {args: []string{"hash-secret", "s3cret"}},
		"stdin":    {args: []string{"hash-secret"}, stdin: "s3cret\n"},
	} {
		t.Run(name, func(t *testing.T) {
			code, out, errOut := runCLI(t, tc.stdin, tc.args...)
			if code != 0 {
				t.Fatalf("exit code = %d, stderr = %q", code, errOut)
			}
			if !auth.VerifySecret(strings.TrimSpace(out), "s3cret") {
				t.Fatalf("hash %q does not verify", out)
			}
		})
	}

	if code, _, _ := runCLI(t, "\n", "hash-secret"); code != 1 {
		t.Fatalf("empty secret exit code = %d, want 1", code)
	}
}

func TestRun_MigrateDemo(t *testing.T) {
	isolateEnv(t)

	code, out, errOut := runCLI(t, "", "migrate", "--demo")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, errOut)
	}
	if !strings.Contains(out, "app database") || !strings.Contains(out, "demo movie database seeded") {
		t.Fatalf("output = %q", out)
	}

	// re-running is a no-op, not an error
	if code, _, errOut := runCLI(t, "", "migrate"); code != 0 {
		t.Fatalf("second migrate exit code = %d, stderr = %q", code, errOut)
	}
}

func TestRun_MigrateDemoRequiresSQLite(t *testing.T) {
	isolateEnv(t)
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://reader@localhost/movies")

	code, _, errOut := runCLI(t, "", "migrate", "--demo")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(errOut, "DB_DRIVER=sqlite") {
		t.Fatalf("stderr = %q", errOut)
	}
}

// fakeOllama asks for one query on a fresh question and answers once it has
// seen the tool result.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		msg := map[string]any{"role": "assistant"}
		if last := req.Messages[len(req.Messages)-1]; last.Role == "tool" {
			msg["content"] = "The top rated movie is The Dark Knight."
		} else {
			msg["content"] = ""
			msg["tool_calls"] = []map[string]any{{
				"function": map[string]any{
					"name":      "run_readonly_query",
					"arguments": map[string]any{"sql": "SELECT title FROM movies ORDER BY rating DESC LIMIT 1"},
				},
			}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"message": msg, "done": true, "done_reason": "stop"})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_ChatREPL(t *testing.T) {
	isolateEnv(t)
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("OLLAMA_BASE_URL", fakeOllama(t).URL)

	if code, _, errOut := runCLI(t, "", "migrate", "--demo"); code != 0 {
		t.Fatalf("migrate exit code = %d, stderr = %q", code, errOut)
	}

	stdin := "best movie?\n/history\n/clear\n/history\n/exit\n"
	code, out, errOut := runCLI(t, stdin, "chat")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, errOut)
	}
	for _, want := range []string{
		"[sql] SELECT title FROM movies ORDER BY rating DESC LIMIT 1 (1 rows)",
		"The top rated movie is The Dark Knight.",
		"user: best movie?",
		"assistant: [query] SELECT title FROM movies ORDER BY rating DESC LIMIT 1",
		"History cleared.",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	// after /clear the second /history prints nothing before the /exit prompt
	tail := out[strings.Index(out, "History cleared."):]
	if strings.Contains(tail, "user:") {
		t.Fatalf("history not cleared:\n%s", out)
	}
}

func TestRun_ChatMissingDatabase(t *testing.T) {
	isolateEnv(t)

	code, _, errOut := runCLI(t, "/exit\n", "chat")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if errOut == "" {
		t.Fatal("expected an error on stderr")
	}
}
