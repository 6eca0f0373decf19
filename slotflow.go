// Package slotflow is a conversational workflow engine for guided data
// analysis. It combines a deterministic workflow state machine with a
// tool-calling reasoning loop: scripted data-collection workflows resolve
// user replies against a fixed set of choices (string matching first, an
// oracle fallback second), while everything outside a workflow, including
// side questions asked mid-workflow, is answered by the loop. Session state
// is durable and survives process restarts when backed by Redis.
package slotflow

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/slotflow/artifact"
	"github.com/hupe1980/slotflow/compute"
	"github.com/hupe1980/slotflow/config"
	"github.com/hupe1980/slotflow/core"
	"github.com/hupe1980/slotflow/dataset"
	"github.com/hupe1980/slotflow/deviate"
	"github.com/hupe1980/slotflow/logging"
	"github.com/hupe1980/slotflow/oracle"
	"github.com/hupe1980/slotflow/reason"
	"github.com/hupe1980/slotflow/session"
	"github.com/hupe1980/slotflow/slot"
	"github.com/hupe1980/slotflow/tool"
	"github.com/hupe1980/slotflow/workflow"
)

const (
	storeUnavailableText = "I'm having trouble accessing saved progress right now. Any workflow that was in progress may need to be restarted. Please try again, or start over."

	storeDegradedNotice = "Heads up: I couldn't reach your saved progress, so any workflow that was in progress will need to be restarted once you're ready."
)

// Options configures an Engine. Zero values fall back to in-memory stores
// and the default configuration, which is enough for tests and demos.
type Options struct {
	Config        config.Config
	SessionStore  core.SessionStore
	ArtifactStore core.ArtifactStore
	Datasets      dataset.Store
	Logger        logging.Logger

	// Tools are registered alongside the built-in tools. A tool sharing a
	// built-in name replaces it.
	Tools []tool.Tool

	// Render produces visualization payloads for the built-in
	// render_visualization tool. Nil uses the JSON echo renderer.
	Render tool.RenderFunc

	// Instructions overrides the reasoning loop's base framing.
	Instructions string
}

// Engine is the single conversational entry point. One Engine serves many
// sessions concurrently; all per-conversation state lives in the session
// store.
type Engine struct {
	cfg          config.Config
	sessions     core.SessionStore
	artifacts    core.ArtifactStore
	datasets     dataset.Store
	orchestrator *workflow.Orchestrator
	loop         *reason.Loop
	logger       logging.Logger
}

// New wires an Engine from an oracle, a workflow registry and a computation
// engine.
func New(orc oracle.Oracle, registry *workflow.Registry, engine compute.Engine, optFns ...func(o *Options)) (*Engine, error) {
	if orc == nil {
		return nil, fmt.Errorf("oracle must not be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("workflow registry must not be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("compute engine must not be nil")
	}

	opts := Options{
		Config:        config.Default(),
		SessionStore:  session.NewInMemoryStore(),
		ArtifactStore: artifact.NewInMemoryStore(),
		Datasets:      dataset.NewInMemoryStore(),
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := opts.Config

	resolver := slot.NewResolver(orc, func(o *slot.Options) {
		o.OracleTimeout = cfg.OracleTimeout
		o.Logger = opts.Logger
	})
	classifier := slot.NewIntentClassifier(orc, func(o *slot.Options) {
		o.OracleTimeout = cfg.OracleTimeout
		o.Logger = opts.Logger
	})

	orchestrator := workflow.NewOrchestrator(registry, resolver, classifier, opts.Datasets, engine, func(o *workflow.Options) {
		o.ConfidenceThreshold = cfg.ConfidenceThreshold
		o.EchoBackMargin = cfg.EchoBackMargin
		o.DeviationThreshold = cfg.DeviationThreshold
		o.Logger = opts.Logger
	})

	builtins := []tool.Tool{
		tool.NewContinueWorkflowTool(orchestrator),
		tool.NewDescribeDatasetTool(opts.Datasets),
		tool.NewRunComputationTool(engine),
		tool.NewRenderVisualizationTool(opts.Render),
	}
	tools := tool.NewRegistry(append(builtins, opts.Tools...)...)

	loop := reason.NewLoop(orc, tools, func(o *reason.Options) {
		o.IterationCap = cfg.IterationCap
		o.HistoryWindow = cfg.HistoryWindow
		o.ToolTimeout = cfg.ToolTimeout
		o.OracleTimeout = cfg.OracleTimeout
		o.Logger = opts.Logger
		if opts.Instructions != "" {
			o.Instructions = opts.Instructions
		}
	})

	orchestrator.SetDeviationHandler(deviate.NewHandler(loop, func(o *deviate.HandlerOptions) {
		o.Logger = opts.Logger
	}))

	return &Engine{
		cfg:          cfg,
		sessions:     opts.SessionStore,
		artifacts:    opts.ArtifactStore,
		datasets:     opts.Datasets,
		orchestrator: orchestrator,
		loop:         loop,
		logger:       opts.Logger,
	}, nil
}

// NewFromConfig loads configuration from path (empty path means defaults plus
// SLOTFLOW_* environment overrides) and wires the components the config
// names: a Redis session store when redis.addr is set, and an engine logger
// honoring logging.level and logging.format. Explicit Options still win over
// the config-derived wiring.
func NewFromConfig(path string, orc oracle.Oracle, registry *workflow.Registry, engine compute.Engine, optFns ...func(o *Options)) (*Engine, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var store core.SessionStore
	if cfg.Redis.Addr != "" {
		rs, err := session.NewRedisStore(cfg.Redis.Addr, func(o *session.RedisStoreOptions) {
			o.Password = cfg.Redis.Password
			o.DB = cfg.Redis.DB
			o.TTL = cfg.Redis.TTL
		})
		if err != nil {
			return nil, fmt.Errorf("redis session store: %w", err)
		}
		store = rs
	}

	wire := func(o *Options) {
		o.Config = *cfg
		o.Logger = logging.NewLogger(&logging.LoggerConfig{
			Level:     logging.ParseLevel(cfg.Logging.Level),
			Format:    cfg.Logging.Format,
			Output:    os.Stdout,
			Component: "slotflow",
		})
		if store != nil {
			o.SessionStore = store
		}
	}
	return New(orc, registry, engine, append([]func(o *Options){wire}, optFns...)...)
}

// Datasets returns the dataset store so callers can register uploaded
// schemas for a session.
func (e *Engine) Datasets() dataset.Store { return e.datasets }

// Artifacts returns the artifact store for resolving visualization
// references returned on responses.
func (e *Engine) Artifacts() core.ArtifactStore { return e.artifacts }

// Orchestrator exposes the workflow orchestrator, mainly for tests.
func (e *Engine) Orchestrator() *workflow.Orchestrator { return e.orchestrator }

// HandleMessage processes one user message for the given session and always
// produces a response: failures inside a turn degrade to an apologetic
// answer with StatusError instead of propagating. Concurrent calls for the
// same session are not serialized; callers should send one message at a
// time per session, as a chat surface naturally does.
func (e *Engine) HandleMessage(ctx context.Context, sessionID, text string) *core.Response {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestDeadline)
	defer cancel()

	sess, storeDown, err := e.loadOrCreate(ctx, sessionID)
	if err != nil {
		e.logger.Error("engine.session.load_failed", "session_id", sessionID, "error", err.Error())
		return core.Error(storeUnavailableText)
	}
	if storeDown {
		e.logger.Warn("engine.session.store_unavailable", "session_id", sessionID)
	}

	sess.AppendTurn(core.NewUserTurn(text))
	rc := core.NewRunContext(ctx, sess, e.sessions, e.artifacts, e.logger)

	resp, handled, err := e.orchestrator.HandleMessage(rc, text)
	if err == nil && !handled {
		resp, err = e.loop.Run(rc, "")
	}
	if err != nil {
		e.logger.Error("engine.turn.failed", "session_id", sessionID, "error", err.Error())
		resp = core.Error("Sorry, something went wrong while handling that. Please try again.")
	}

	if storeDown {
		resp.Text += "\n\n" + storeDegradedNotice
	}

	sess.AppendTurn(core.NewAssistantTurn(resp.Text))
	resp.Visualizations = rc.Visualizations()

	if err := rc.CommitSession(); err != nil {
		// The answer is still valid; only durability degraded.
		e.logger.Warn("engine.session.commit_failed", "session_id", sessionID, "error", err.Error())
	}
	return resp
}

// Reset discards the session's workflow state and conversation history.
func (e *Engine) Reset(ctx context.Context, sessionID string) error {
	if err := e.sessions.Clear(ctx, sessionID); err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// loadOrCreate fetches the session, creating a fresh one for unknown ids.
// An unreachable store also yields a fresh session, with degraded=true: the
// workflow is treated as inactive for the turn and the conversation continues
// rather than failing, so the caller can tell the user to restart.
func (e *Engine) loadOrCreate(ctx context.Context, sessionID string) (sess *core.Session, degraded bool, err error) {
	sess, err = e.sessions.Get(ctx, sessionID)
	switch {
	case err == nil:
		return sess, false, nil
	case errors.Is(err, core.ErrSessionNotFound):
		return core.NewSession(sessionID), false, nil
	case errors.Is(err, core.ErrStoreUnavailable):
		return core.NewSession(sessionID), true, nil
	default:
		return nil, false, err
	}
}
