package attendance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/go-rollcall/internal/errors"
	"github.com/jrsteele09/go-rollcall/internal/utils"
)

// DateLayout is the calendar date key of a Session.
const DateLayout = "2006-01-02"

// DateOf returns the session date key for t in loc.
func DateOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// Student is one entry of the course roster.
type Student struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Photo string `json:"photo,omitempty"`
}

// Session is one class meeting. StartTime is set by the first tap and never
// changes afterwards.
type Session struct {
	Date      string            `json:"date"`
	StartTime *time.Time        `json:"start_time,omitempty"`
	Active    bool              `json:"active"`
	Records   map[string]Record `json:"records"`
}

// IsEmpty reports whether every record of the session is absent.
func (s Session) IsEmpty() bool {
	for _, r := range s.Records {
		if !r.IsAbsent() {
			return false
		}
	}
	return true
}

// Dataset is the persisted document of one course section.
type Dataset struct {
	Students []Student `json:"students"`
	Sessions []Session `json:"sessions"`
}

// HasStudent reports whether id is on the roster.
func (d *Dataset) HasStudent(id string) bool {
	for _, s := range d.Students {
		if s.ID == id {
			return true
		}
	}
	return false
}

// Session returns the session for date, or nil.
func (d *Dataset) Session(date string) *Session {
	for i := range d.Sessions {
		if d.Sessions[i].Date == date {
			return &d.Sessions[i]
		}
	}
	return nil
}

// Tap applies one interaction to studentID in the session for date, creating
// that session on first use. The elapsed time for the grace period is
// measured from the session's first tap.
func (d *Dataset) Tap(date, studentID string, mode Mode, now time.Time, grace time.Duration) (Record, error) {
	switch mode {
	case ModePresent, ModeLate, ModeUndo:
	default:
		return Record{}, errors.Wrapf(errors.ErrInvalidMode, "%q", mode)
	}
	if !d.HasStudent(studentID) {
		return Record{}, errors.Wrapf(errors.ErrUnknownStudent, "%q", studentID)
	}

	session := d.Session(date)
	if session == nil {
		d.Sessions = append(d.Sessions, Session{
			Date:    date,
			Active:  true,
			Records: make(map[string]Record),
		})
		session = &d.Sessions[len(d.Sessions)-1]
	}
	if session.Records == nil {
		session.Records = make(map[string]Record)
	}
	if session.StartTime == nil {
		session.StartTime = utils.Ptr(now)
	}

	next := Transition(session.Records[studentID], mode, now.Sub(*session.StartTime), grace)
	session.Records[studentID] = next
	return next, nil
}

// Clone returns a deep copy.
func (d Dataset) Clone() Dataset {
	out := Dataset{
		Students: append([]Student{}, d.Students...),
		Sessions: make([]Session, 0, len(d.Sessions)),
	}
	for _, s := range d.Sessions {
		out.Sessions = append(out.Sessions, cloneSession(s))
	}
	return out
}

func cloneSession(s Session) Session {
	c := Session{
		Date:    s.Date,
		Active:  s.Active,
		Records: make(map[string]Record, len(s.Records)),
	}
	if s.StartTime != nil {
		c.StartTime = utils.Ptr(*s.StartTime)
	}
	for id, r := range s.Records {
		c.Records[id] = r
	}
	return c
}

// Normalize returns a copy without sessions whose every record is absent.
// Normalizing a normalized dataset changes nothing.
func (d Dataset) Normalize() Dataset {
	out := Dataset{
		Students: append([]Student{}, d.Students...),
		Sessions: make([]Session, 0, len(d.Sessions)),
	}
	for _, s := range d.Sessions {
		if s.IsEmpty() {
			continue
		}
		out.Sessions = append(out.Sessions, cloneSession(s))
	}
	return out
}

// Encode normalizes the dataset and renders the persisted JSON document.
func Encode(d Dataset) ([]byte, error) {
	data, err := json.MarshalIndent(d.Normalize(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode dataset: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a persisted document. Empty input is an empty dataset.
// Records are repaired so the absent/count invariant holds, and sessions
// with the same date are merged.
func Decode(data []byte) (Dataset, error) {
	var d Dataset
	if len(bytes.TrimSpace(data)) == 0 {
		return Dataset{Students: []Student{}, Sessions: []Session{}}, nil
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return Dataset{}, fmt.Errorf("failed to decode dataset: %w", err)
	}

	if d.Students == nil {
		d.Students = []Student{}
	}
	if d.Sessions == nil {
		d.Sessions = []Session{}
	}
	for i := range d.Sessions {
		if d.Sessions[i].Records == nil {
			d.Sessions[i].Records = make(map[string]Record)
		}
		for id, r := range d.Sessions[i].Records {
			d.Sessions[i].Records[id] = r.normalized()
		}
	}
	d.Sessions = mergeSessions(d.Sessions)
	return d, nil
}

// mergeSessions folds sessions sharing a date into the first of them, so
// there is at most one session per date.
func mergeSessions(sessions []Session) []Session {
	out := make([]Session, 0, len(sessions))
	index := make(map[string]int, len(sessions))
	for _, s := range sessions {
		i, ok := index[s.Date]
		if !ok {
			index[s.Date] = len(out)
			out = append(out, s)
			continue
		}
		kept := &out[i]
		kept.Active = kept.Active || s.Active
		if s.StartTime != nil && (kept.StartTime == nil || s.StartTime.Before(*kept.StartTime)) {
			kept.StartTime = s.StartTime
		}
		for id, r := range s.Records {
			kept.Records[id] = mergeRecords(kept.Records[id], r)
		}
	}
	return out
}

// mergeRecords keeps the higher count, and late wins over present.
func mergeRecords(a, b Record) Record {
	if a.IsAbsent() {
		return b
	}
	if b.IsAbsent() {
		return a
	}
	merged := Record{Status: StatusPresent, Count: max(a.Count, b.Count)}
	if a.Status == StatusLate || b.Status == StatusLate {
		merged.Status = StatusLate
	}
	return merged
}
