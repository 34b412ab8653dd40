// Package coordinator drives refreshes of the station snapshot and owns
// the last-known-good state consumers read from.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hweber/emax-station/internal/emax"
	"github.com/hweber/emax-station/internal/station"
	"github.com/hweber/emax-station/internal/store"
)

// State is the coordinator's observable state.
type State int

const (
	// NoData is the initial state, before the first successful refresh.
	NoData State = iota
	// HasData means a snapshot is held and visible to consumers.
	HasData
)

// FailureKind classifies a failed refresh for reporting.
type FailureKind int

const (
	FailureGeneric FailureKind = iota
	FailureTimeout
	FailureInvalidData
	FailureAuth
)

func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureInvalidData:
		return "invalid_data"
	case FailureAuth:
		return "auth"
	}
	return "generic"
}

// RefreshError is a classified refresh failure with its cause preserved.
type RefreshError struct {
	Kind FailureKind
	Err  error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh failed (%s): %v", e.Kind, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// Source is the realtime fetch the coordinator polls. *emax.Client
// satisfies it.
type Source interface {
	FetchRealtime(ctx context.Context) (*emax.Snapshot, error)
}

// call is one in-flight refresh whose result concurrent callers share.
type call struct {
	done chan struct{}
	snap *emax.Snapshot
	err  error
}

// Coordinator serializes refreshes against a Source and keeps the last
// successfully fetched snapshot. At most one refresh is in flight at a
// time; a refresh requested while one is running observes the in-flight
// result instead of issuing a second network round trip. On failure the
// held snapshot stays untouched and the failure is published through
// LastError.
type Coordinator struct {
	source Source
	store  *store.MemoryStore
	log    *logrus.Entry

	mu       sync.Mutex
	inflight *call
	state    State
	snapshot *emax.Snapshot
	latest   *station.Observation
	lastErr  *RefreshError
}

// New creates a coordinator. The store may be nil when no local history is
// wanted.
func New(source Source, st *store.MemoryStore) *Coordinator {
	return &Coordinator{
		source: source,
		store:  st,
		log:    logrus.WithField("component", "coordinator"),
	}
}

// Refresh fetches a new snapshot, or joins the refresh already in flight.
func (c *Coordinator) Refresh(ctx context.Context) (*emax.Snapshot, error) {
	c.mu.Lock()
	if c.inflight != nil {
		cl := c.inflight
		c.mu.Unlock()
		select {
		case <-cl.done:
			return cl.snap, cl.err
		case <-ctx.Done():
			return nil, &RefreshError{Kind: FailureTimeout, Err: ctx.Err()}
		}
	}
	cl := &call{done: make(chan struct{})}
	c.inflight = cl
	c.mu.Unlock()

	snap, err := c.source.FetchRealtime(ctx)
	if err == nil && snap == nil {
		err = fmt.Errorf("%w: empty snapshot", emax.ErrMalformed)
	}

	cl.snap = snap
	if err != nil {
		cl.err = classify(err)
	}
	c.apply(cl)
	close(cl.done)

	return cl.snap, cl.err
}

// apply folds a finished call into the coordinator state.
func (c *Coordinator) apply(cl *call) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight = nil

	if cl.err != nil {
		var re *RefreshError
		errors.As(cl.err, &re)
		c.lastErr = re
		c.log.WithError(cl.err).Warn("refresh failed; keeping last good snapshot")
		return
	}

	channels, readings := station.ResolveAll(cl.snap)
	obs := station.Observation{
		Timestamp: time.Now().UTC(),
		Channels:  channels,
		Readings:  readings,
	}

	c.snapshot = cl.snap
	c.latest = &obs
	c.state = HasData
	c.lastErr = nil

	if c.store != nil {
		c.store.Append(obs)
	}
	c.log.WithField("channels", len(channels)).Debug("refresh applied")
}

// classify maps a source error onto the failure taxonomy.
func classify(err error) *RefreshError {
	switch {
	case errors.Is(err, emax.ErrTimeout):
		return &RefreshError{Kind: FailureTimeout, Err: err}
	case errors.Is(err, emax.ErrMalformed):
		return &RefreshError{Kind: FailureInvalidData, Err: err}
	case errors.Is(err, emax.ErrAuth):
		return &RefreshError{Kind: FailureAuth, Err: err}
	default:
		return &RefreshError{Kind: FailureGeneric, Err: err}
	}
}

// Snapshot returns the last successfully fetched snapshot, nil in NoData.
func (c *Coordinator) Snapshot() *emax.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Latest returns the resolved reading set for the held snapshot.
func (c *Coordinator) Latest() (station.Observation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return station.Observation{}, false
	}
	return *c.latest, true
}

// State returns NoData until the first successful refresh.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the classification of the most recent failed refresh,
// nil if the last refresh succeeded.
func (c *Coordinator) LastError() *RefreshError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}
