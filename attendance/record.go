// Package attendance holds the per-student attendance record state machine
// and the course dataset it mutates.
package attendance

import (
	"strings"
	"time"

	"github.com/jrsteele09/go-rollcall/internal/errors"
)

// DefaultGracePeriod is how long after a session starts a "present" tap
// still counts as on time.
const DefaultGracePeriod = 3 * time.Minute

// Status is the attendance outcome of a record.
type Status string

const (
	StatusAbsent  Status = "absent"
	StatusPresent Status = "present"
	StatusLate    Status = "late"
)

// Record is one student's attendance in one session.
// Invariant: Status is absent exactly when Count is 0.
type Record struct {
	Status Status `json:"status"`
	Count  int    `json:"count"`
}

// IsAbsent treats the zero Record as absent.
func (r Record) IsAbsent() bool {
	return r.Count == 0
}

// Mode is the interaction mode selected by the operator.
type Mode string

const (
	ModePresent Mode = "present"
	ModeLate    Mode = "late"
	ModeUndo    Mode = "undo"
)

// ParseMode converts user input into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModePresent, ModeLate, ModeUndo:
		return m, nil
	}
	return "", errors.Wrapf(errors.ErrInvalidMode, "%q", s)
}

// EffectiveMode applies the grace-period policy: "present" on an absent record
// becomes "late" once more than grace has elapsed since the session started.
func EffectiveMode(r Record, mode Mode, elapsed, grace time.Duration) Mode {
	if mode == ModePresent && r.IsAbsent() && elapsed > grace {
		return ModeLate
	}
	return mode
}

// Transition returns the record after one tap. It never mutates r and
// unknown modes leave the record unchanged.
func Transition(r Record, mode Mode, elapsed, grace time.Duration) Record {
	r = r.normalized()

	switch EffectiveMode(r, mode, elapsed, grace) {
	case ModePresent:
		if r.IsAbsent() {
			return Record{Status: StatusPresent, Count: 1}
		}
		return Record{Status: r.Status, Count: r.Count + 1}
	case ModeLate:
		if r.IsAbsent() {
			return Record{Status: StatusLate, Count: 1}
		}
		return Record{Status: StatusLate, Count: r.Count}
	case ModeUndo:
		switch {
		case r.Count > 1:
			return Record{Status: r.Status, Count: r.Count - 1}
		case r.Count == 1:
			return Record{Status: StatusAbsent, Count: 0}
		}
	}
	return r
}

// normalized repairs records read from disk so the absent/count invariant
// holds. A positive count with no usable status counts as present.
func (r Record) normalized() Record {
	if r.Count <= 0 {
		return Record{Status: StatusAbsent, Count: 0}
	}
	if r.Status != StatusPresent && r.Status != StatusLate {
		r.Status = StatusPresent
	}
	return r
}
