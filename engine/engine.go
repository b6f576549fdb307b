package engine

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/memory"
	"github.com/becomeliminal/recall/metrics"
	"github.com/becomeliminal/recall/session"
)

// Apology replaces the answer when a turn fails at an external boundary.
const Apology = "Sorry, I ran into a problem answering that. Please try again."

// ErrNotReady is returned for every turn when the engine was started
// without a memory pipeline.
var ErrNotReady = errors.New("memory pipeline is not initialized")

// Memory is the retrieve/ingest pair a turn runs against.
// *memory.Pipeline implements it.
type Memory interface {
	Retrieve(ctx context.Context, query string) (answer string, memoryContext string, err error)
	Ingest(ctx context.Context, text string, turn int) (*memory.Record, error)
	Count(ctx context.Context) (int, error)
}

// Engine drives one conversation turn at a time: retrieve, answer, then
// ingest the user's text. It is shared by every front end.
type Engine struct {
	memory   Memory
	sessions *session.Manager
	metrics  *metrics.Metrics
}

// Option configures the engine.
type Option func(*Engine)

// WithMetrics records turn outcomes and stage latencies.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithSessions sets the history manager. Default: session.NewManager(0).
func WithSessions(s *session.Manager) Option {
	return func(e *Engine) {
		e.sessions = s
	}
}

// New creates an engine. A nil mem yields an engine that reports not ready
// and fails every turn with ErrNotReady.
func New(mem Memory, opts ...Option) *Engine {
	e := &Engine{memory: mem}
	for _, opt := range opts {
		opt(e)
	}
	if e.sessions == nil {
		e.sessions = session.NewManager(0)
	}
	return e
}

// Output is the result of one turn.
type Output struct {
	UserID string
	Turn   int

	// Answer is the model's reply, or Apology when the turn failed.
	Answer string

	// MemoryContext is the recalled text ("" when nothing was recalled).
	MemoryContext string

	// Saved reports whether this turn's text was written to memory.
	Saved bool

	Timestamp time.Time
}

// MemoryUsed returns the recalled context for display.
func (o *Output) MemoryUsed() string {
	return memory.DisplayContext(o.MemoryContext)
}

// Ready reports whether a memory pipeline is attached.
func (e *Engine) Ready() bool {
	return e.memory != nil
}

// Sessions returns the history manager.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Count returns how many memories are stored.
func (e *Engine) Count(ctx context.Context) (int, error) {
	if e.memory == nil {
		return 0, ErrNotReady
	}
	return e.memory.Count(ctx)
}

// Turn runs one conversation turn.
//
// Retrieval always completes before the user's text is ingested, so a turn
// never recalls itself. When retrieval fails the error is returned alongside
// an Output carrying Apology, and nothing is ingested. Ingestion runs on a
// context detached from ctx's cancellation; its failure is logged and
// reflected in Output.Saved but does not fail the turn.
func (e *Engine) Turn(ctx context.Context, in *core.Input) (*Output, error) {
	if in == nil || strings.TrimSpace(in.Message) == "" {
		return nil, core.Errorf(core.KindInvalidInput, "turn", "message is required")
	}

	sess := e.sessions.Get(in.ResolvedUserID())
	turn := in.Turn
	if turn <= 0 {
		turn = sess.NextTurn()
	} else {
		sess.Observe(turn)
	}

	out := &Output{UserID: sess.UserID(), Turn: turn}

	if e.memory == nil {
		out.Answer = Apology
		out.Timestamp = time.Now().UTC()
		e.metrics.ObserveTurn(metrics.OutcomeFailed)
		return out, ErrNotReady
	}

	// === PHASE 1: RETRIEVE + ANSWER ===
	start := time.Now()
	answer, memoryContext, err := e.memory.Retrieve(ctx, in.Message)
	e.metrics.ObserveStage(metrics.StageRetrieve, time.Since(start))
	out.MemoryContext = memoryContext
	out.Timestamp = time.Now().UTC()

	if err != nil {
		kind := core.KindOf(err)
		log.Printf("[ENGINE] Turn %d for %s failed: kind=%s op=%s: %v", turn, out.UserID, kind, core.OpOf(err), err)
		e.metrics.ObserveError(string(kind))
		if core.IsRecoverable(err) {
			e.metrics.ObserveTurn(metrics.OutcomeDegraded)
		} else {
			e.metrics.ObserveTurn(metrics.OutcomeFailed)
		}

		out.Answer = Apology
		sess.Append(in.Message, Apology)
		return out, err
	}

	out.Answer = answer

	// === PHASE 2: INGEST ===
	// The client may already be gone; the turn is still worth keeping.
	start = time.Now()
	rec, err := e.memory.Ingest(context.WithoutCancel(ctx), in.Message, turn)
	e.metrics.ObserveStage(metrics.StageIngest, time.Since(start))
	if err != nil {
		log.Printf("[ENGINE] Failed to save turn %d for %s: %v", turn, out.UserID, err)
		e.metrics.ObserveError(string(core.KindOf(err)))
	}
	out.Saved = rec != nil

	sess.Append(in.Message, answer)
	e.metrics.ObserveTurn(metrics.OutcomeOK)
	return out, nil
}

// History returns the display history for userID, oldest first.
func (e *Engine) History(userID string) []core.Turn {
	sess, ok := e.sessions.Lookup(userID)
	if !ok {
		return []core.Turn{}
	}
	return sess.History()
}
