package core

import (
	"context"
	"fmt"

	"github.com/hupe1980/slotflow/logging"
)

// RunContext carries execution state and helpers for one handled message.
// It aggregates:
//   - The ambient cancellation Context (carries the end-to-end deadline)
//   - Identifiers (SessionID, RunID)
//   - The working Session snapshot loaded at request start
//   - Backing services (session store, artifact store) for persistence
//   - Visualization references accumulated by tools during the turn
//
// A RunContext lives for exactly one HandleMessage call. The Session snapshot
// is written back through the SessionStore at request end (last-writer-wins).
type RunContext struct {
	Context      context.Context
	SessionID    string
	RunID        string
	Session      *Session
	SessionStore SessionStore
	Artifacts    ArtifactStore

	visualizations []string

	*loggerAdapter
}

// NewRunContext constructs a RunContext bound to a loaded session snapshot.
func NewRunContext(
	ctx context.Context,
	sess *Session,
	store SessionStore,
	artifacts ArtifactStore,
	logger logging.Logger,
) *RunContext {
	return &RunContext{
		Context:       ctx,
		SessionID:     sess.ID,
		RunID:         NewID(),
		Session:       sess,
		SessionStore:  store,
		Artifacts:     artifacts,
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// AddVisualization records a visualization reference produced during the
// turn. References surface on the final Response.
func (rc *RunContext) AddVisualization(ref string) {
	rc.visualizations = append(rc.visualizations, ref)
}

// Visualizations returns the references accumulated so far.
func (rc *RunContext) Visualizations() []string { return rc.visualizations }

// SaveArtifact stores bytes in the ArtifactStore scoped to this session and
// records the id as a visualization reference.
func (rc *RunContext) SaveArtifact(id string, data []byte) error {
	if rc.Artifacts == nil {
		return fmt.Errorf("artifact store not configured")
	}
	if err := rc.Artifacts.Save(rc.SessionID, id, data); err != nil {
		return err
	}
	rc.AddVisualization(id)
	return nil
}

// CommitSession writes the session snapshot back through the store. Called
// once at request end; a tool call that mutated durable workflow state must
// be allowed to finish before the commit runs.
func (rc *RunContext) CommitSession() error {
	if rc.SessionStore == nil {
		return nil
	}
	return rc.SessionStore.Put(rc.Context, rc.Session)
}
