// Package chat runs the tool-calling loop between the user, the model and the
// read-only query tool.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/matiasleandrokruk/moviegpt/internal/domain/audit"
	"github.com/matiasleandrokruk/moviegpt/internal/domain/conversation"
	"github.com/matiasleandrokruk/moviegpt/internal/domain/query"
	"github.com/matiasleandrokruk/moviegpt/internal/domain/tool"
	"github.com/matiasleandrokruk/moviegpt/internal/infra/llm"
	"github.com/matiasleandrokruk/moviegpt/internal/infra/metrics"
)

// Outcome is how a loop invocation terminated.
type Outcome string

const (
	OutcomeAnswered              Outcome = "answered"
	OutcomeUnsupportedCapability Outcome = "unsupported_capability"
	OutcomeModelUnavailable      Outcome = "model_unavailable"
	OutcomeIterationCeiling      Outcome = "iteration_ceiling"
	OutcomeCancelled             Outcome = "cancelled"
)

// Fixed answers for the non-answered outcomes.
const (
	AnswerUnsupported      = "Unsupported function call."
	AnswerIterationCeiling = "Maximum query attempts reached without a final answer."
	AnswerModelUnavailable = "The model did not return a usable response. Please try again."
	AnswerCancelled        = "The request was cancelled before a final answer was produced."
)

// DefaultMaxIterations is the tool-round ceiling when Config leaves it unset.
const DefaultMaxIterations = 10

// QueryOutcome is one executed tool round.
type QueryOutcome struct {
	SQL    string           `json:"sql"`
	Result query.ToolResult `json:"result"`
}

// Result is returned by SendMessage for every outcome.
type Result struct {
	ConversationID string
	Answer         string
	Outcome        Outcome
	// LastQuery and LastRows describe the most recent tool round; LastRows is
	// empty when that round failed.
	LastQuery  string
	LastRows   []map[string]any
	AllResults []QueryOutcome
	Rounds     int
}

// Publisher receives one audit.QueryExecuted per tool round.
// *eventbus.Bus implements it.
type Publisher interface {
	Publish(topic string, payload any)
}

type Config struct {
	SystemPrompt    string
	SchemaOverview  string
	MaxIterations   int
	EmptyResultHint bool
	Temperature     float32
	MaxTokens       int
}

type Service struct {
	llm    llm.LLMProvider
	tools  *tool.Registry
	store  *conversation.Store
	bus    Publisher
	cfg    Config
	system string
	log    zerolog.Logger
	now    func() time.Time
}

// NewService wires the loop. bus may be nil.
func NewService(provider llm.LLMProvider, tools *tool.Registry, store *conversation.Store, bus Publisher, cfg Config, log zerolog.Logger) *Service {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	return &Service{
		llm:    provider,
		tools:  tools,
		store:  store,
		bus:    bus,
		cfg:    cfg,
		system: buildSystemPrompt(cfg.SystemPrompt, cfg.SchemaOverview),
		log:    log,
		now:    time.Now,
	}
}

// loopState belongs to one SendMessage call and is dropped when it returns.
type loopState struct {
	iterations     int
	lastInvocation *conversation.Invocation
	lastCall       *tool.Call
	accumulated    []QueryOutcome
	pending        []conversation.Turn
}

// SendMessage runs the loop for one user message on conversationID.
// Every outcome is reported through Result; the error is non-nil only when
// the conversation store fails.
func (s *Service) SendMessage(ctx context.Context, conversationID, text string) (*Result, error) {
	id := conversation.NormalizeID(conversationID)
	start := s.now()

	sess, err := s.store.Acquire(ctx, id)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			metrics.RecordChatLoop(string(OutcomeCancelled), 0, time.Since(start))
			return &Result{ConversationID: id, Answer: AnswerCancelled, Outcome: OutcomeCancelled,
				LastRows: []map[string]any{}, AllResults: []QueryOutcome{}}, nil
		}
		return nil, err
	}
	defer sess.Release()

	st := &loopState{pending: []conversation.Turn{conversation.UserTurn(text, s.now())}}
	outcome, answer := s.run(ctx, id, sess.History(), st)
	st.pending = append(st.pending, conversation.ModelText(answer, s.now()))

	// the caller's ctx may already be done; partial progress is still committed
	if err := sess.Commit(context.WithoutCancel(ctx), st.pending...); err != nil {
		return nil, err
	}

	res := st.result(id, answer, outcome)
	elapsed := time.Since(start)
	metrics.RecordChatLoop(string(outcome), st.iterations, elapsed)
	s.log.Info().
		Str("conversation_id", id).
		Str("outcome", string(outcome)).
		Int("rounds", st.iterations).
		Dur("elapsed", elapsed).
		Msg("chat loop finished")
	return res, nil
}

func (s *Service) run(ctx context.Context, id string, history []conversation.Turn, st *loopState) (Outcome, string) {
	provider := s.llm.ModelInfo().Provider
	tools := toolDefs(s.tools.Definitions())

	for {
		if ctx.Err() != nil {
			return OutcomeCancelled, AnswerCancelled
		}
		if st.iterations >= s.cfg.MaxIterations {
			return OutcomeIterationCeiling, AnswerIterationCeiling
		}

		msgs := toMessages(append(append([]conversation.Turn{}, history...), st.pending...))
		resp, err := s.llm.ChatCompletion(ctx, llm.ChatRequest{
			System:      s.system,
			Messages:    msgs,
			Tools:       tools,
			Temperature: s.cfg.Temperature,
			MaxTokens:   s.cfg.MaxTokens,
		})
		if err != nil {
			if ctx.Err() != nil {
				metrics.RecordLLMCall(provider, "cancelled")
				return OutcomeCancelled, AnswerCancelled
			}
			metrics.RecordLLMCall(provider, "error")
			s.log.Warn().Err(err).Str("conversation_id", id).Msg("model call failed")
			return OutcomeModelUnavailable, AnswerModelUnavailable
		}

		reply, ok := toReply(resp, st.iterations+1)
		if !ok {
			metrics.RecordLLMCall(provider, "empty")
			return OutcomeModelUnavailable, AnswerModelUnavailable
		}
		metrics.RecordLLMCall(provider, "ok")

		switch r := reply.(type) {
		case FinalText:
			return OutcomeAnswered, r.Text
		case ToolRequest:
			t, err := s.tools.Get(r.Invocation.Name)
			if err != nil {
				s.log.Warn().Str("conversation_id", id).Str("tool", r.Invocation.Name).Msg("model asked for an undeclared tool")
				return OutcomeUnsupportedCapability, AnswerUnsupported
			}
			s.handleInvocation(ctx, id, t, r.Invocation, st)
		}
	}
}

// handleInvocation runs one tool round and records it on st.
func (s *Service) handleInvocation(ctx context.Context, id string, t tool.Tool, inv conversation.Invocation, st *loopState) {
	started := s.now()
	call := t.Invoke(ctx, inv.Arguments)
	dur := time.Since(started)

	st.pending = append(st.pending,
		conversation.ModelInvocation(inv, started),
		conversation.ToolResult(inv, s.encodeResult(call.Result), s.now()),
	)
	st.iterations++
	st.lastInvocation = &inv
	st.lastCall = &call
	st.accumulated = append(st.accumulated, QueryOutcome{SQL: call.SQL, Result: call.Result})

	if s.bus != nil {
		evt := audit.QueryExecuted{
			ConversationID: id,
			SQL:            call.SQL,
			Duration:       dur,
			At:             started,
		}
		if call.Result.OK() {
			evt.RowCount = int64(call.Result.Success.RowCount)
		} else if call.Result.Failure != nil {
			evt.Failed = true
			evt.ErrorCode = call.Result.Failure.Code
			evt.ErrorMessage = call.Result.Failure.Message
		}
		s.bus.Publish(audit.TopicQueryExecuted, evt)
	}
}

// encodeResult renders the payload sent back to the model.
func (s *Service) encodeResult(r query.ToolResult) json.RawMessage {
	payload := r.Payload()
	if s.cfg.EmptyResultHint && r.OK() && len(r.Success.Rows) == 0 {
		payload["hint"] = emptyResultHint
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		raw, _ = json.Marshal(query.Failed(query.CodeUnknown, "encode result: "+err.Error(), "").Payload()) //nolint:errcheck
	}
	return raw
}

func (st *loopState) result(id, answer string, outcome Outcome) *Result {
	res := &Result{
		ConversationID: id,
		Answer:         answer,
		Outcome:        outcome,
		LastRows:       []map[string]any{},
		AllResults:     st.accumulated,
		Rounds:         st.iterations,
	}
	if res.AllResults == nil {
		res.AllResults = []QueryOutcome{}
	}
	if st.lastCall != nil {
		res.LastQuery = st.lastCall.SQL
		res.LastRows = st.lastCall.Result.RowsOrEmpty()
	}
	return res
}

// ClearHistory resets conversationID to zero turns.
func (s *Service) ClearHistory(ctx context.Context, conversationID string) error {
	return s.store.Clear(ctx, conversation.NormalizeID(conversationID))
}

// GetHistory returns the client view of conversationID.
func (s *Service) GetHistory(ctx context.Context, conversationID string) ([]conversation.HistoryEntry, error) {
	turns, err := s.store.History(ctx, conversation.NormalizeID(conversationID))
	if err != nil {
		return nil, err
	}
	return conversation.View(turns), nil
}
