package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/matiasleandrokruk/moviegpt/internal/domain/audit"
	"github.com/matiasleandrokruk/moviegpt/internal/domain/chat"
	"github.com/matiasleandrokruk/moviegpt/internal/domain/conversation"
	"github.com/matiasleandrokruk/moviegpt/internal/domain/query"
	"github.com/matiasleandrokruk/moviegpt/internal/domain/tool"
	"github.com/matiasleandrokruk/moviegpt/internal/infra/config"
	"github.com/matiasleandrokruk/moviegpt/internal/infra/eventbus"
	"github.com/matiasleandrokruk/moviegpt/internal/infra/llm"
	"github.com/matiasleandrokruk/moviegpt/internal/infra/logging"
	"github.com/matiasleandrokruk/moviegpt/internal/infra/moviedb"
	"github.com/matiasleandrokruk/moviegpt/internal/infra/omdb"
	"github.com/matiasleandrokruk/moviegpt/internal/infra/sqlite"
)

// app is the fully wired service graph shared by serve, chat and mcp.
type app struct {
	cfg      config.Config
	log      zerolog.Logger
	movies   *sql.DB
	appDB    *sql.DB
	tools    *tool.Registry
	bus      *eventbus.Bus
	audit    *audit.Service
	chat     *chat.Service
	omdb     *omdb.Client
	overview string
}

// newApp opens both databases, migrates the app database and wires services.
// Logs go to logOut.
func newApp(ctx context.Context, logOut io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, logOut)

	a := &app{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	if err := ensureParentDir(cfg.AppDBPath); err != nil {
		return nil, err
	}
	if a.appDB, err = sqlite.NewDB(cfg.AppDBPath); err != nil {
		return nil, err
	}
	if err := sqlite.MigrateUp(ctx, a.appDB); err != nil {
		return nil, fmt.Errorf("migrate app database: %w", err)
	}

	a.movies, err = moviedb.Open(ctx, moviedb.Options{
		Driver:       cfg.DBDriver,
		DSN:          cfg.DBDSN,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		return nil, err
	}

	if cfg.SchemaOverview {
		if a.overview, err = moviedb.SchemaOverview(ctx, a.movies, cfg.DBDriver); err != nil {
			log.Warn().Err(err).Msg("schema overview unavailable; continuing without it")
		}
	}

	exec := query.NewExecutor(a.movies, query.Config{Driver: cfg.DBDriver, Timeout: cfg.QueryTimeout}, log)
	a.tools = tool.NewRegistry()
	if err := a.tools.Register(tool.NewReadOnlyQueryTool(exec)); err != nil {
		return nil, err
	}

	a.bus = eventbus.New()
	a.audit = audit.NewService(a.appDB, log)

	var repo conversation.Repository = conversation.NewMemoryRepository()
	if cfg.HistoryStore == "sqlite" {
		repo = conversation.NewSQLRepository(a.appDB)
	}

	a.chat = chat.NewService(newProvider(cfg), a.tools, conversation.NewStore(repo), a.bus, chat.Config{
		SystemPrompt:    cfg.SystemPrompt,
		SchemaOverview:  a.overview,
		MaxIterations:   cfg.MaxIterations,
		EmptyResultHint: cfg.EmptyResultHint,
	}, log)

	a.omdb = omdb.New(omdb.Options{BaseURL: cfg.OMDbBaseURL, APIKey: cfg.OMDbAPIKey}, log)

	ok = true
	return a, nil
}

// newProvider registers every configured model backend and routes to LLM_PROVIDER.
func newProvider(cfg config.Config) *llm.Router {
	providers := map[string]llm.LLMProvider{
		"ollama": llm.NewOllamaProvider(cfg.OllamaBaseURL, cfg.OllamaChatModel),
	}
	if cfg.GeminiAPIKey != "" {
		providers["gemini"] = llm.NewGeminiProvider(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel)
	}
	return llm.NewRouter(providers, cfg.LLMProvider)
}

func (a *app) close() {
	if a.bus != nil {
		a.bus.Close()
	}
	var errs []error
	if a.movies != nil {
		errs = append(errs, a.movies.Close())
	}
	if a.appDB != nil {
		errs = append(errs, a.appDB.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warn().Err(err).Msg("close databases")
	}
}

func ensureParentDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	return nil
}
