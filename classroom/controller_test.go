package classroom_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-rollcall/attendance"
	"github.com/jrsteele09/go-rollcall/classroom"
	"github.com/jrsteele09/go-rollcall/internal/clock/clockfake"
	"github.com/jrsteele09/go-rollcall/internal/config"
	"github.com/jrsteele09/go-rollcall/internal/errors"
	"github.com/jrsteele09/go-rollcall/remote/remotefake"
	"github.com/jrsteele09/go-rollcall/syncer"
	"github.com/stretchr/testify/require"
)

type testAttendanceConfig struct{}

func (testAttendanceConfig) GetGracePeriod() time.Duration { return 3 * time.Minute }
func (testAttendanceConfig) GetLocation() *time.Location   { return time.UTC }

type staticCredentials struct {
	err error
}

func (c staticCredentials) EnsureFreshCredential(context.Context) (string, error) {
	return "tok", c.err
}

func (c staticCredentials) ForceRefresh(context.Context) (string, error) {
	return "tok", c.err
}

var courses = []config.Course{
	{Code: "CS101", Name: "Intro to CS", Section: "A", Year: 2026, Term: "Fall"},
	{Code: "CS102", Name: "Data Structures", Section: "B", Year: 2026, Term: "Fall"},
}

const rosterDoc = `{"students": [{"id": "s1", "name": "Ada"}, {"id": "s2", "name": "Alan"}], "sessions": []}`

type controllerFixture struct {
	controller *classroom.Controller
	clock      *clockfake.Clock
	store      *remotefake.FakeStore
	pipeline   *syncer.Pipeline
}

func newControllerFixture(t *testing.T, creds syncer.CredentialSource) *controllerFixture {
	t.Helper()
	clk := clockfake.New(time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC))
	store := remotefake.NewFakeStore()
	store.Put("/2026-fall/cs101-a.json", []byte(rosterDoc))

	pipeline, err := syncer.NewPipeline(config.Sync{}, creds, store, syncer.WithClock(clk))
	require.NoError(t, err)

	c, err := classroom.NewController(testAttendanceConfig{}, courses, creds, store, pipeline, classroom.WithClock(clk))
	require.NoError(t, err)

	return &controllerFixture{controller: c, clock: clk, store: store, pipeline: pipeline}
}

func TestController_OpenCourse(t *testing.T) {
	f := newControllerFixture(t, staticCredentials{})

	_, ok := f.controller.ActiveCourse()
	require.False(t, ok)
	_, err := f.controller.Dataset()
	require.ErrorIs(t, err, errors.ErrNoActiveCourse)

	d, err := f.controller.OpenCourse(context.Background(), "CS101-a")
	require.NoError(t, err)
	require.Len(t, d.Students, 2)

	active, ok := f.controller.ActiveCourse()
	require.True(t, ok)
	require.Equal(t, "cs101-a", active.ID())
}

func TestController_OpenCourseWithoutRemoteFile(t *testing.T) {
	f := newControllerFixture(t, staticCredentials{})

	d, err := f.controller.OpenCourse(context.Background(), "cs102-b")
	require.NoError(t, err)
	require.Empty(t, d.Students)
	require.Empty(t, d.Sessions)
}

func TestController_OpenCourseErrors(t *testing.T) {
	t.Run("unknown course", func(t *testing.T) {
		f := newControllerFixture(t, staticCredentials{})
		_, err := f.controller.OpenCourse(context.Background(), "art100-z")
		require.ErrorIs(t, err, errors.ErrCourseNotFound)
	})

	t.Run("not connected", func(t *testing.T) {
		f := newControllerFixture(t, staticCredentials{err: errors.ErrUnauthenticated})
		_, err := f.controller.OpenCourse(context.Background(), "cs101-a")
		require.ErrorIs(t, err, errors.ErrUnauthenticated)
	})

	t.Run("remote failure", func(t *testing.T) {
		f := newControllerFixture(t, staticCredentials{})
		f.store.FailDownloads(errors.Wrapf(errors.ErrRemoteTransient, "503"))
		_, err := f.controller.OpenCourse(context.Background(), "cs101-a")
		require.ErrorIs(t, err, errors.ErrRemoteTransient)
		_, ok := f.controller.ActiveCourse()
		require.False(t, ok)
	})
}

func TestController_TapSchedulesSave(t *testing.T) {
	f := newControllerFixture(t, staticCredentials{})
	_, err := f.controller.Tap("s1", "")
	require.ErrorIs(t, err, errors.ErrNoActiveCourse)

	_, err = f.controller.OpenCourse(context.Background(), "cs101-a")
	require.NoError(t, err)

	r, err := f.controller.Tap("s1", "")
	require.NoError(t, err)
	require.Equal(t, attendance.Record{Status: attendance.StatusPresent, Count: 1}, r)

	f.clock.Advance(200 * time.Millisecond)
	r, err = f.controller.Tap("s1", "")
	require.NoError(t, err)
	require.Equal(t, 2, r.Count)

	status, err := f.controller.SaveStatus()
	require.NoError(t, err)
	require.True(t, status.Pending)

	f.clock.Advance(time.Second)
	require.Len(t, f.store.Uploads(), 1)

	saved, ok := f.store.Get("/2026-fall/cs101-a.json")
	require.True(t, ok)
	d, err := attendance.Decode(saved)
	require.NoError(t, err)
	require.Equal(t, attendance.Record{Status: attendance.StatusPresent, Count: 2}, d.Session("2026-09-01").Records["s1"])
}

func TestController_GracePeriodUsesClock(t *testing.T) {
	f := newControllerFixture(t, staticCredentials{})
	_, err := f.controller.OpenCourse(context.Background(), "cs101-a")
	require.NoError(t, err)

	_, err = f.controller.Tap("s1", "")
	require.NoError(t, err)

	f.clock.Advance(181 * time.Second)
	r, err := f.controller.Tap("s2", "")
	require.NoError(t, err)
	require.Equal(t, attendance.StatusLate, r.Status)
}

func TestController_Modes(t *testing.T) {
	f := newControllerFixture(t, staticCredentials{})
	_, err := f.controller.OpenCourse(context.Background(), "cs101-a")
	require.NoError(t, err)
	require.Equal(t, attendance.ModePresent, f.controller.Mode())

	require.ErrorIs(t, f.controller.SetMode("bogus"), errors.ErrInvalidMode)
	require.NoError(t, f.controller.SetMode(attendance.ModeLate))

	r, err := f.controller.Tap("s1", "")
	require.NoError(t, err)
	require.Equal(t, attendance.Record{Status: attendance.StatusLate, Count: 1}, r)

	r, err = f.controller.Tap("s1", attendance.ModeUndo)
	require.NoError(t, err)
	require.Equal(t, attendance.StatusAbsent, r.Status)

	_, err = f.controller.Tap("nobody", "")
	require.ErrorIs(t, err, errors.ErrUnknownStudent)
}

func TestController_DatasetIsACopy(t *testing.T) {
	f := newControllerFixture(t, staticCredentials{})
	_, err := f.controller.OpenCourse(context.Background(), "cs101-a")
	require.NoError(t, err)
	_, err = f.controller.Tap("s1", "")
	require.NoError(t, err)

	d, err := f.controller.Dataset()
	require.NoError(t, err)
	d.Sessions[0].Records["s1"] = attendance.Record{Status: attendance.StatusLate, Count: 9}

	again, err := f.controller.Dataset()
	require.NoError(t, err)
	require.Equal(t, 1, again.Sessions[0].Records["s1"].Count)
}

func TestController_ReopenKeepsUnsavedEdits(t *testing.T) {
	const path = "/2026-fall/cs101-a.json"

	persisted := func(t *testing.T, f *controllerFixture) attendance.Session {
		t.Helper()
		saved, ok := f.store.Get(path)
		require.True(t, ok)
		d, err := attendance.Decode(saved)
		require.NoError(t, err)
		s := d.Session("2026-09-01")
		require.NotNil(t, s)
		return *s
	}

	t.Run("after the save failed for good", func(t *testing.T) {
		f := newControllerFixture(t, staticCredentials{})
		_, err := f.controller.OpenCourse(context.Background(), "cs101-a")
		require.NoError(t, err)

		f.store.FailUploads(errors.ErrRemoteTransient, errors.ErrRemoteTransient)
		_, err = f.controller.Tap("s1", "")
		require.NoError(t, err)
		f.clock.Advance(time.Second)
		f.clock.Advance(3 * time.Second)
		require.Len(t, f.store.Uploads(), 2)

		status, err := f.controller.SaveStatus()
		require.NoError(t, err)
		require.NotEmpty(t, status.LastError)

		d, err := f.controller.OpenCourse(context.Background(), "cs101-a")
		require.NoError(t, err)
		require.NotNil(t, d.Session("2026-09-01"))
		require.Equal(t, 1, d.Session("2026-09-01").Records["s1"].Count)

		_, err = f.controller.Tap("s2", "")
		require.NoError(t, err)
		f.clock.Advance(time.Second)

		s := persisted(t, f)
		require.Equal(t, attendance.Record{Status: attendance.StatusPresent, Count: 1}, s.Records["s1"])
		require.Equal(t, attendance.Record{Status: attendance.StatusPresent, Count: 1}, s.Records["s2"])
	})

	t.Run("while the save is still pending", func(t *testing.T) {
		f := newControllerFixture(t, staticCredentials{})
		_, err := f.controller.OpenCourse(context.Background(), "cs101-a")
		require.NoError(t, err)

		_, err = f.controller.Tap("s1", "")
		require.NoError(t, err)
		f.clock.Advance(100 * time.Millisecond)

		_, err = f.controller.OpenCourse(context.Background(), "cs101-a")
		require.NoError(t, err)
		_, err = f.controller.Tap("s2", "")
		require.NoError(t, err)
		f.clock.Advance(time.Second)

		require.Len(t, f.store.Uploads(), 1)
		s := persisted(t, f)
		require.Equal(t, 1, s.Records["s1"].Count)
		require.Equal(t, 1, s.Records["s2"].Count)
	})

	t.Run("switching away and back", func(t *testing.T) {
		f := newControllerFixture(t, staticCredentials{})
		_, err := f.controller.OpenCourse(context.Background(), "cs101-a")
		require.NoError(t, err)
		_, err = f.controller.Tap("s1", "")
		require.NoError(t, err)

		_, err = f.controller.OpenCourse(context.Background(), "cs102-b")
		require.NoError(t, err)
		d, err := f.controller.OpenCourse(context.Background(), "cs101-a")
		require.NoError(t, err)
		require.Equal(t, 1, d.Session("2026-09-01").Records["s1"].Count)

		f.clock.Advance(time.Second)
		require.Equal(t, 1, persisted(t, f).Records["s1"].Count)
	})

	t.Run("saved course is downloaded again", func(t *testing.T) {
		f := newControllerFixture(t, staticCredentials{})
		_, err := f.controller.OpenCourse(context.Background(), "cs101-a")
		require.NoError(t, err)
		_, err = f.controller.Tap("s1", "")
		require.NoError(t, err)
		f.clock.Advance(time.Second)

		// Another device adds a student.
		f.store.Put(path, []byte(`{"students": [{"id": "s1", "name": "Ada"}, {"id": "s2", "name": "Alan"}, {"id": "s3", "name": "Grace"}], "sessions": []}`))

		d, err := f.controller.OpenCourse(context.Background(), "cs101-a")
		require.NoError(t, err)
		require.Len(t, d.Students, 3)
	})
}
