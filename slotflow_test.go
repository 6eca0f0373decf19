package slotflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/slotflow/core"
	"github.com/hupe1980/slotflow/dataset"
	"github.com/hupe1980/slotflow/internal/testutil"
	"github.com/hupe1980/slotflow/logging"
	"github.com/hupe1980/slotflow/oracle"
	"github.com/hupe1980/slotflow/session"
	"github.com/hupe1980/slotflow/workflow"
)

func newTestEngine(t *testing.T, orc oracle.Oracle, optFns ...func(o *Options)) *Engine {
	t.Helper()
	registry, err := workflow.NewRegistry(testutil.MalariaDefinition())
	require.NoError(t, err)

	engine, err := New(orc, registry, testutil.StaticEngine("viz-1"), optFns...)
	require.NoError(t, err)
	return engine
}

func TestNewRejectsNilDependencies(t *testing.T) {
	registry, err := workflow.NewRegistry(testutil.MalariaDefinition())
	require.NoError(t, err)

	_, err = New(nil, registry, testutil.StaticEngine())
	assert.Error(t, err)

	_, err = New(oracle.NewMockOracle(), nil, testutil.StaticEngine())
	assert.Error(t, err)

	_, err = New(oracle.NewMockOracle(), registry, nil)
	assert.Error(t, err)
}

func TestGuidedWorkflowEndToEnd(t *testing.T) {
	orc := oracle.NewMockOracle()
	engine := newTestEngine(t, orc)
	ctx := context.Background()

	engine.Datasets().(*dataset.InMemoryStore).Put("s1", testutil.SingleRegionSchema())

	resp := engine.HandleMessage(ctx, "s1", "calculate the incidence rate")
	assert.Equal(t, core.StatusAwaitingInput, resp.Status)
	assert.Contains(t, resp.Text, "Which facility level")

	resp = engine.HandleMessage(ctx, "s1", "health post")
	assert.Equal(t, core.StatusAwaitingInput, resp.Status)
	assert.Contains(t, resp.Text, "Which age group")

	resp = engine.HandleMessage(ctx, "s1", "under five")
	assert.Equal(t, core.StatusOK, resp.Status)
	assert.Contains(t, resp.Text, "region was selected automatically")
	assert.Contains(t, resp.Text, "incidence_rate computed for")
	assert.Equal(t, []string{"viz-1"}, resp.Visualizations)

	// Exact and alias matches never needed the oracle.
	assert.Zero(t, orc.Calls())
}

func TestDeviationMidWorkflow(t *testing.T) {
	orc := oracle.NewMockOracle()
	// Resolver, classifier, then the reasoning loop.
	orc.Enqueue(
		oracle.Response{Text: `{"value": null, "confidence": 0.0, "rationale": "a question"}`},
		oracle.Response{Text: `{"category": "question", "confidence": 0.9}`},
		oracle.Response{Text: "Incidence is new cases per 1,000 population."},
	)
	engine := newTestEngine(t, orc)
	ctx := context.Background()

	engine.HandleMessage(ctx, "s1", "calculate the incidence rate")
	resp := engine.HandleMessage(ctx, "s1", "what does incidence mean?")

	assert.Contains(t, resp.Text, "Incidence is new cases per 1,000 population.")
	assert.Contains(t, resp.Text, "We were on facility level")
	assert.Equal(t, core.StatusAwaitingInput, resp.Status)

	// The workflow did not move; the next reply still answers facility_level.
	resp = engine.HandleMessage(ctx, "s1", "primary")
	assert.Contains(t, resp.Text, "Which age group")
}

func TestFreeFormQuestionUsesLoop(t *testing.T) {
	orc := oracle.NewMockOracle()
	orc.Enqueue(oracle.Response{Text: "You have 5 columns."})
	engine := newTestEngine(t, orc)

	resp := engine.HandleMessage(context.Background(), "s1", "how many columns do I have?")
	assert.Equal(t, core.StatusOK, resp.Status)
	assert.Equal(t, "You have 5 columns.", resp.Text)
}

func TestSessionPersistsAcrossMessages(t *testing.T) {
	store := session.NewInMemoryStore()
	engine := newTestEngine(t, oracle.NewMockOracle(), func(o *Options) {
		o.SessionStore = store
	})
	ctx := context.Background()

	engine.HandleMessage(ctx, "s1", "calculate the incidence rate")
	engine.HandleMessage(ctx, "s1", "primary")

	sess, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "age_group", sess.WorkflowState().CurrentStage)
	v, _ := sess.WorkflowState().Selected("facility_level")
	assert.Equal(t, "primary", v)
	// Two user turns and two assistant turns.
	assert.Len(t, sess.Turns(), 4)
}

func TestStoreUnavailableDegradesToInactive(t *testing.T) {
	orc := oracle.NewMockOracle()
	orc.Enqueue(oracle.Response{Text: "A column is one named field of your dataset."})
	engine := newTestEngine(t, orc, func(o *Options) {
		o.SessionStore = unavailableStore{}
	})

	// The turn continues with a fresh inactive session: the question still
	// reaches the reasoning loop, and the reply carries a restart notice.
	resp := engine.HandleMessage(context.Background(), "s1", "what is a column?")
	assert.Equal(t, core.StatusOK, resp.Status)
	assert.Equal(t, 1, orc.Calls())
	assert.Contains(t, resp.Text, "A column is one named field")
	assert.Contains(t, resp.Text, "saved progress")
	assert.Contains(t, resp.Text, "restarted")
}

func TestTurnFailureProducesErrorResponse(t *testing.T) {
	orc := oracle.NewMockOracle()
	orc.FailWith(errors.New("api down"))
	engine := newTestEngine(t, orc)

	// No workflow active, so the message goes to the loop, which fails.
	resp := engine.HandleMessage(context.Background(), "s1", "anything")
	assert.Equal(t, core.StatusError, resp.Status)
	assert.Contains(t, resp.Text, "something went wrong")
}

func TestReset(t *testing.T) {
	store := session.NewInMemoryStore()
	engine := newTestEngine(t, oracle.NewMockOracle(), func(o *Options) {
		o.SessionStore = store
	})
	ctx := context.Background()

	engine.HandleMessage(ctx, "s1", "calculate the incidence rate")
	require.NoError(t, engine.Reset(ctx, "s1"))

	_, err := store.Get(ctx, "s1")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	assert.NoError(t, engine.Reset(ctx, "never existed"))
}

func TestNewFromConfigWiresRedisAndLogger(t *testing.T) {
	mr := miniredis.RunT(t)
	path := filepath.Join(t.TempDir(), "slotflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(
		"iteration_cap: 3\nredis:\n  addr: %q\nlogging:\n  level: warn\n", mr.Addr(),
	)), 0o600))

	registry, err := workflow.NewRegistry(testutil.MalariaDefinition())
	require.NoError(t, err)
	engine, err := NewFromConfig(path, oracle.NewMockOracle(), registry, testutil.StaticEngine("viz-1"))
	require.NoError(t, err)

	assert.Equal(t, 3, engine.cfg.IterationCap)
	assert.IsType(t, &session.RedisStore{}, engine.sessions)
	assert.IsType(t, &logging.EngineLogger{}, engine.logger)

	// Sessions actually land in Redis.
	engine.HandleMessage(context.Background(), "s1", "calculate the incidence rate")
	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "s1")
}

func TestNewFromConfigDefaults(t *testing.T) {
	registry, err := workflow.NewRegistry(testutil.MalariaDefinition())
	require.NoError(t, err)

	engine, err := NewFromConfig("", oracle.NewMockOracle(), registry, testutil.StaticEngine("viz-1"))
	require.NoError(t, err)
	assert.IsType(t, &session.InMemoryStore{}, engine.sessions)

	// Explicit options still win over the config-derived wiring.
	store := session.NewInMemoryStore()
	engine, err = NewFromConfig("", oracle.NewMockOracle(), registry, testutil.StaticEngine("viz-1"), func(o *Options) {
		o.SessionStore = store
		o.Logger = logging.NoOpLogger{}
	})
	require.NoError(t, err)
	assert.Same(t, store, engine.sessions)
	assert.IsType(t, logging.NoOpLogger{}, engine.logger)
}

type unavailableStore struct{}

func (unavailableStore) Get(context.Context, string) (*core.Session, error) {
	return nil, fmt.Errorf("%w: connection refused", core.ErrStoreUnavailable)
}

func (unavailableStore) Put(context.Context, *core.Session) error {
	return fmt.Errorf("%w: connection refused", core.ErrStoreUnavailable)
}

func (unavailableStore) Clear(context.Context, string) error {
	return fmt.Errorf("%w: connection refused", core.ErrStoreUnavailable)
}
