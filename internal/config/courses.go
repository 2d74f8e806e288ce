package config

import (
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Course identifies one course section whose attendance lives in a single
// remote JSON document.
type Course struct {
	Code    string `toml:"code"`
	Name    string `toml:"name"`
	Section string `toml:"section"`
	Year    int    `toml:"year"`
	Term    string `toml:"term"`
}

// ID is the stable identifier used in API routes, e.g. "cs101-a".
func (c Course) ID() string {
	return strings.ToLower(c.Code + "-" + c.Section)
}

// DataPath is the remote path of the course's dataset, e.g. "/2026-fall/cs101-a.json".
func (c Course) DataPath() string {
	return fmt.Sprintf("/%d-%s/%s.json", c.Year, strings.ToLower(c.Term), c.ID())
}

type coursesFile struct {
	Courses []Course `toml:"course"`
}

// LoadCourses reads the course list. A missing file yields an empty list.
func LoadCourses(path string) ([]Course, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseCourses(data)
}

// ParseCourses decodes a TOML course list and rejects duplicate or incomplete entries.
func ParseCourses(data []byte) ([]Course, error) {
	var file coursesFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse courses: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Courses))
	for i, c := range file.Courses {
		if c.Code == "" || c.Section == "" || c.Year == 0 || c.Term == "" {
			return nil, fmt.Errorf("course %d: code, section, year and term are required", i+1)
		}
		if _, ok := seen[c.ID()]; ok {
			return nil, fmt.Errorf("duplicate course %q", c.ID())
		}
		seen[c.ID()] = struct{}{}
	}
	return file.Courses, nil
}

// FindCourse returns the course with the given ID.
func FindCourse(courses []Course, id string) (Course, bool) {
	for _, c := range courses {
		if c.ID() == strings.ToLower(id) {
			return c, true
		}
	}
	return Course{}, false
}
