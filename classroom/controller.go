// Package classroom owns the course currently being marked: its dataset, the
// interaction mode and the save pipeline handle.
package classroom

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
	"github.com/jrsteele09/go-rollcall/syncer"
	"github.com/rs/zerolog"
)

// Saver persists dataset snapshots in the background.
type Saver interface {
	Schedule(path string, d attendance.Dataset) (uint64, error)
	Status(path string) syncer.SaveStatus
}

// Controller is the single writer of the open course's dataset. Every
// mutation goes through it and is followed by a scheduled save.
type Controller struct {
	courses []config.Course
	creds   syncer.CredentialSource
	store   remote.Store
	saver   Saver
	clock   clock.Clock
	grace   time.Duration
	loc     *time.Location
	logger  zerolog.Logger

	mu       sync.Mutex
	active   *config.Course
	dataset  *attendance.Dataset
	datasets map[string]*attendance.Dataset // by data path
	mode     attendance.Mode
}

// ControllerOption defines a function type to modify the Controller instance.
type ControllerOption func(*Controller)

// WithClock sets the clock (primarily for testing)
func WithClock(clk clock.Clock) ControllerOption {
	return func(c *Controller) {
		c.clock = clk
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController creates a controller for the given course list.
func NewController(cfg config.AttendanceConfig, courses []config.Course, creds syncer.CredentialSource, store remote.Store, saver Saver, options ...ControllerOption) (*Controller, error) {
	if cfg == nil {
		return nil, fmt.Errorf("[NewController] config is required")
	}
	if creds == nil || store == nil || saver == nil {
		return nil, fmt.Errorf("[NewController] credential source, remote store and saver are required")
	}

	c := &Controller{
		courses:  courses,
		creds:    creds,
		store:    store,
		saver:    saver,
		clock:    clock.Real{},
		grace:    cfg.GetGracePeriod(),
		loc:      cfg.GetLocation(),
		logger:   zerolog.Nop(),
		datasets: make(map[string]*attendance.Dataset),
		mode:     attendance.ModePresent,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Courses returns the configured course list.
func (c *Controller) Courses() []config.Course {
	return append([]config.Course{}, c.courses...)
}

// ActiveCourse returns the open course.
func (c *Controller) ActiveCourse() (config.Course, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return config.Course{}, false
	}
	return *c.active, true
}

// OpenCourse makes course id the active one and returns its dataset. A
// course already held in memory with edits not yet saved is reused as is;
// otherwise the dataset is downloaded. A course without a remote document
// starts with an empty dataset.
func (c *Controller) OpenCourse(ctx context.Context, id string) (attendance.Dataset, error) {
	course, ok := config.FindCourse(c.courses, id)
	if !ok {
		return attendance.Dataset{}, errors.Wrapf(errors.ErrCourseNotFound, "%q", id)
	}
	path := course.DataPath()

	c.mu.Lock()
	if held, ok := c.unsavedLocked(path); ok {
		defer c.mu.Unlock()
		c.activateLocked(course, held)
		c.logger.Info().Str("course", course.ID()).Msg("Course reopened with unsaved edits")
		return held.Clone(), nil
	}
	c.mu.Unlock()

	dataset, err := c.download(ctx, course)
	if err != nil {
		return attendance.Dataset{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Edits made while downloading win over the remote copy.
	if held, ok := c.unsavedLocked(path); ok {
		c.activateLocked(course, held)
		return held.Clone(), nil
	}
	c.datasets[path] = &dataset
	c.activateLocked(course, &dataset)

	c.logger.Info().Str("course", course.ID()).Int("students", len(dataset.Students)).Int("sessions", len(dataset.Sessions)).Msg("Course opened")
	return dataset.Clone(), nil
}

func (c *Controller) download(ctx context.Context, course config.Course) (attendance.Dataset, error) {
	token, err := c.creds.EnsureFreshCredential(ctx)
	if err != nil {
		return attendance.Dataset{}, err
	}

	path := course.DataPath()
	data, err := c.store.Download(ctx, token, path)
	switch {
	case errors.Is(err, errors.ErrRemoteNotFound):
		c.logger.Info().Str("path", path).Msg("No saved data, starting empty")
		data = nil
	case err != nil:
		return attendance.Dataset{}, errors.Wrapf(err, "failed to load %s", course.ID())
	}

	dataset, err := attendance.Decode(data)
	if err != nil {
		return attendance.Dataset{}, errors.Wrapf(err, "failed to load %s", course.ID())
	}
	return dataset, nil
}

// unsavedLocked returns the in-memory dataset for path when it holds edits
// the saver has not written yet. Caller holds mu.
func (c *Controller) unsavedLocked(path string) (*attendance.Dataset, bool) {
	held, ok := c.datasets[path]
	if !ok {
		return nil, false
	}
	status := c.saver.Status(path)
	if status.Pending || status.LastError != "" || status.SavedGeneration < status.Generation {
		return held, true
	}
	return nil, false
}

func (c *Controller) activateLocked(course config.Course, d *attendance.Dataset) {
	c.active = &course
	c.dataset = d
}

// Dataset returns a copy of the active dataset.
func (c *Controller) Dataset() (attendance.Dataset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return attendance.Dataset{}, errors.ErrNoActiveCourse
	}
	return c.dataset.Clone(), nil
}

// Mode returns the interaction mode applied to taps.
func (c *Controller) Mode() attendance.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode changes the interaction mode.
func (c *Controller) SetMode(mode attendance.Mode) error {
	switch mode {
	case attendance.ModePresent, attendance.ModeLate, attendance.ModeUndo:
	default:
		return errors.Wrapf(errors.ErrInvalidMode, "%q", mode)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
	return nil
}

// Tap records one interaction for studentID in today's session and schedules
// a save. An empty mode uses the current mode. The edit is kept even if the
// save cannot be scheduled.
func (c *Controller) Tap(studentID string, mode attendance.Mode) (attendance.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return attendance.Record{}, errors.ErrNoActiveCourse
	}
	if mode == "" {
		mode = c.mode
	}

	now := c.clock.Now()
	record, err := c.dataset.Tap(attendance.DateOf(now, c.loc), studentID, mode, now, c.grace)
	if err != nil {
		return attendance.Record{}, err
	}

	path := c.active.DataPath()
	if _, err := c.saver.Schedule(path, *c.dataset); err != nil {
		c.logger.Error().Err(err).Str("path", path).Msg("Failed to schedule save")
	}
	return record, nil
}

// SaveStatus reports the save state of the active course.
func (c *Controller) SaveStatus() (syncer.SaveStatus, error) {
	c.mu.Lock()
	course := c.active
	c.mu.Unlock()

	if course == nil {
		return syncer.SaveStatus{}, errors.ErrNoActiveCourse
	}
	return c.saver.Status(course.DataPath()), nil
}
