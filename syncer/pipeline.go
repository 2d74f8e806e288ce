// Package syncer debounces dataset saves and writes them to the remote store.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-rollcall/attendance"
	"github.com/jrsteele09/go-rollcall/internal/clock"
	"github.com/jrsteele09/go-rollcall/internal/config"
	"github.com/jrsteele09/go-rollcall/internal/errors"
	"github.com/jrsteele09/go-rollcall/remote"
	"github.com/rs/zerolog"
)

// CredentialSource supplies access tokens for remote writes.
type CredentialSource interface {
	EnsureFreshCredential(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// SaveStatus describes the save state of one document path.
type SaveStatus struct {
	Path            string    `json:"path"`
	Generation      uint64    `json:"generation"`
	SavedGeneration uint64    `json:"saved_generation"`
	Pending         bool      `json:"pending"`
	LastError       string    `json:"last_error,omitempty"`
	LastSavedAt     time.Time `json:"last_saved_at,omitempty"`
}

type pathState struct {
	latest   uint64
	snapshot []byte
	timer    clock.Timer
	retry    clock.Timer
	pending  bool
	saved    uint64
	savedAt  time.Time
	lastErr  error
}

func (st *pathState) stopTimers() {
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	if st.retry != nil {
		st.retry.Stop()
		st.retry = nil
	}
}

// Pipeline debounces saves per document path. Each Schedule call supersedes
// the previous one for the same path; only the latest snapshot is written,
// at most once per quiet interval. Uploads are serialized so an older
// snapshot can never land after a newer one.
type Pipeline struct {
	creds      CredentialSource
	store      remote.Store
	clock      clock.Clock
	notifier   Notifier
	logger     zerolog.Logger
	ctx        context.Context
	quiet      time.Duration
	retryDelay time.Duration

	mu         sync.Mutex // guards generation and paths
	generation uint64
	paths      map[string]*pathState

	writeMu sync.Mutex // held for the duration of one upload
}

// PipelineOption defines a function type to modify the Pipeline instance.
type PipelineOption func(*Pipeline)

// WithClock sets the clock used for timers (primarily for testing)
func WithClock(clk clock.Clock) PipelineOption {
	return func(p *Pipeline) {
		p.clock = clk
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithNotifier sets where terminal save failures are reported
func WithNotifier(n Notifier) PipelineOption {
	return func(p *Pipeline) {
		p.notifier = n
	}
}

// WithBaseContext sets the context of timer-driven uploads. Cancelling it
// aborts in-flight uploads.
func WithBaseContext(ctx context.Context) PipelineOption {
	return func(p *Pipeline) {
		p.ctx = ctx
	}
}

// NewPipeline creates a save pipeline.
func NewPipeline(cfg config.SyncConfig, creds CredentialSource, store remote.Store, options ...PipelineOption) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("[NewPipeline] config is required")
	}
	if creds == nil {
		return nil, fmt.Errorf("[NewPipeline] credential source is required")
	}
	if store == nil {
		return nil, fmt.Errorf("[NewPipeline] remote store is required")
	}

	p := &Pipeline{
		creds:      creds,
		store:      store,
		clock:      clock.Real{},
		notifier:   NewBoard(0, nil),
		logger:     zerolog.Nop(),
		ctx:        context.Background(),
		quiet:      cfg.GetSaveQuietInterval(),
		retryDelay: cfg.GetSaveRetryDelay(),
		paths:      make(map[string]*pathState),
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// Schedule snapshots the normalized dataset and arms a save for path after
// the quiet interval, cancelling any save already pending for that path.
// It returns the generation of this save.
func (p *Pipeline) Schedule(path string, d attendance.Dataset) (uint64, error) {
	data, err := attendance.Encode(d)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.state(path)
	st.stopTimers()

	p.generation++
	g := p.generation
	st.latest = g
	st.snapshot = data
	st.pending = true
	st.timer = p.clock.AfterFunc(p.quiet, func() {
		p.fire(path, g, 1, false)
	})

	p.logger.Debug().Str("path", path).Uint64("generation", g).Msg("Save scheduled")
	return g, nil
}

// Status reports the save state of path.
func (p *Pipeline) Status(path string) SaveStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := SaveStatus{Path: path}
	st, ok := p.paths[path]
	if !ok {
		return status
	}
	status.Generation = st.latest
	status.SavedGeneration = st.saved
	status.Pending = st.pending
	status.LastSavedAt = st.savedAt
	if st.lastErr != nil {
		status.LastError = st.lastErr.Error()
	}
	return status
}

// Flush writes every pending save now instead of waiting for its timer,
// retrying each failure once without delay. It returns the first failure.
func (p *Pipeline) Flush(ctx context.Context) error {
	type job struct {
		path string
		g    uint64
	}

	p.mu.Lock()
	var jobs []job
	for path, st := range p.paths {
		if !st.pending {
			continue
		}
		st.stopTimers()
		jobs = append(jobs, job{path: path, g: st.latest})
	}
	p.mu.Unlock()

	var firstErr error
	for _, j := range jobs {
		stale, err := p.attempt(ctx, j.path, j.g, false)
		if err != nil && !stale && retryable(err) {
			stale, err = p.attempt(ctx, j.path, j.g, errors.Is(err, errors.ErrRemoteAuth))
		}
		if err != nil && !stale {
			p.fail(j.path, j.g, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// fire runs when a save timer expires.
func (p *Pipeline) fire(path string, g uint64, attempt int, forceRefresh bool) {
	stale, err := p.attempt(p.ctx, path, g, forceRefresh)
	if stale || err == nil {
		return
	}

	log := p.logger.With().Str("path", path).Uint64("generation", g).Int("attempt", attempt).Logger()
	if attempt > 1 || !retryable(err) {
		log.Error().Err(err).Msg("Save failed")
		p.fail(path, g, err)
		return
	}

	log.Warn().Err(err).Dur("retry_in", p.retryDelay).Msg("Save failed, retrying")
	force := errors.Is(err, errors.ErrRemoteAuth)

	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.state(path)
	if st.latest != g {
		return
	}
	st.retry = p.clock.AfterFunc(p.retryDelay, func() {
		p.fire(path, g, attempt+1, force)
	})
}

// attempt uploads the snapshot of generation g unless a newer save has been
// scheduled or g is already saved. stale reports that nothing was uploaded.
func (p *Pipeline) attempt(ctx context.Context, path string, g uint64, forceRefresh bool) (stale bool, err error) {
	data, ok := p.snapshotIfLatest(path, g)
	if !ok {
		p.logger.Debug().Str("path", path).Uint64("generation", g).Msg("Save superseded")
		return true, nil
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	// A newer save may have been scheduled while waiting for the write lock.
	if _, ok := p.snapshotIfLatest(path, g); !ok {
		p.logger.Debug().Str("path", path).Uint64("generation", g).Msg("Save superseded")
		return true, nil
	}

	if err := p.upload(ctx, path, data, forceRefresh); err != nil {
		return false, err
	}

	p.mu.Lock()
	st := p.state(path)
	if g > st.saved {
		st.saved = g
		st.savedAt = p.clock.Now()
	}
	if st.latest == g {
		st.pending = false
		st.lastErr = nil
	}
	p.mu.Unlock()

	p.logger.Info().Str("path", path).Uint64("generation", g).Int("bytes", len(data)).Msg("Saved")
	return false, nil
}

func (p *Pipeline) upload(ctx context.Context, path string, data []byte, forceRefresh bool) error {
	var (
		token string
		err   error
	)
	if forceRefresh {
		token, err = p.creds.ForceRefresh(ctx)
	} else {
		token, err = p.creds.EnsureFreshCredential(ctx)
	}
	if err != nil {
		return err
	}
	return p.store.Upload(ctx, token, path, data)
}

// fail records a terminal failure and tells the operator. Local edits are
// kept; the next Schedule starts a new attempt.
func (p *Pipeline) fail(path string, g uint64, err error) {
	p.mu.Lock()
	st := p.state(path)
	current := st.latest == g
	if current {
		st.pending = false
		st.lastErr = err
	}
	p.mu.Unlock()

	if !current {
		return
	}
	p.notifier.Notify(Notice{
		Level:   LevelError,
		Message: failureMessage(err),
		Path:    path,
		Time:    p.clock.Now(),
	})
}

func (p *Pipeline) snapshotIfLatest(path string, g uint64) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.paths[path]
	if !ok || st.latest != g || st.saved >= g {
		return nil, false
	}
	return st.snapshot, true
}

// state returns the entry for path, creating it. Caller holds mu.
func (p *Pipeline) state(path string) *pathState {
	st, ok := p.paths[path]
	if !ok {
		st = &pathState{}
		p.paths[path] = st
	}
	return st
}

// retryable is false for credential failures that another attempt cannot fix.
func retryable(err error) bool {
	return !errors.Is(err, errors.ErrUnauthenticated) &&
		!errors.Is(err, errors.ErrAuthorizationExpired) &&
		!errors.Is(err, errors.ErrMissingVerifier)
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, errors.ErrUnauthenticated),
		errors.Is(err, errors.ErrAuthorizationExpired),
		errors.Is(err, errors.ErrRemoteAuth):
		return "Could not save changes: please reconnect your storage account"
	default:
		return "Could not save changes: they will be saved with your next edit"
	}
}
