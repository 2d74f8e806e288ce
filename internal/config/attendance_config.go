package config

import (
	"time"
)

type AttendanceConfig interface {
	GetGracePeriod() time.Duration
	GetLocation() *time.Location
}

type Attendance struct{}

var _ AttendanceConfig = Attendance{}

// GetGracePeriod is how long after the first tap of a session a "present"
// tap still counts as on time.
func (Attendance) GetGracePeriod() time.Duration {
	return 3 * time.Minute
}

// GetLocation is the time zone used to decide which calendar date a tap
// belongs to. Unknown zones fall back to local time.
func (Attendance) GetLocation() *time.Location {
	name := GetEnv("TZ", "")
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}
