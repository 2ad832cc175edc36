package holiday

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/alarm-engine/internal/persistence"
)

// Calendar is a read-only, in-memory national holiday lookup. It is built
// once from seed data and is safe for concurrent readers.
type Calendar struct {
	names map[string]string
}

// NewCalendar indexes the provided holiday table.
func NewCalendar(holidays []persistence.Holiday) *Calendar {
	names := make(map[string]string, len(holidays))
	for _, h := range holidays {
		names[h.Date] = h.Name
	}
	return &Calendar{names: names}
}

// IsHoliday reports whether the date (in persistence.DateLayout form) is a
// national holiday.
func (c *Calendar) IsHoliday(date string) bool {
	if c == nil {
		return false
	}
	_, ok := c.names[date]
	return ok
}

// Name returns the holiday's display name for the date, if any.
func (c *Calendar) Name(date string) (string, bool) {
	if c == nil {
		return "", false
	}
	name, ok := c.names[date]
	return name, ok
}

// All returns the holiday table ordered by date.
func (c *Calendar) All() []persistence.Holiday {
	if c == nil {
		return nil
	}
	holidays := make([]persistence.Holiday, 0, len(c.names))
	for date, name := range c.names {
		holidays = append(holidays, persistence.Holiday{Date: date, Name: name})
	}
	sort.Slice(holidays, func(i, j int) bool { return holidays[i].Date < holidays[j].Date })
	return holidays
}

type seedFile struct {
	Holidays []seedEntry `yaml:"holidays"`
}

type seedEntry struct {
	Date string `yaml:"date"`
	Name string `yaml:"name"`
}

// ParseSeed decodes a YAML holiday seed document and validates every entry.
func ParseSeed(data []byte) ([]persistence.Holiday, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("holiday: failed to parse seed data: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Holidays))
	holidays := make([]persistence.Holiday, 0, len(file.Holidays))
	for i, entry := range file.Holidays {
		if _, err := time.Parse(persistence.DateLayout, entry.Date); err != nil {
			return nil, fmt.Errorf("holiday: entry %d has invalid date %q", i, entry.Date)
		}
		if entry.Name == "" {
			return nil, fmt.Errorf("holiday: entry %d (%s) is missing a name", i, entry.Date)
		}
		if _, dup := seen[entry.Date]; dup {
			return nil, fmt.Errorf("holiday: duplicate date %s in seed data", entry.Date)
		}
		seen[entry.Date] = struct{}{}
		holidays = append(holidays, persistence.Holiday{Date: entry.Date, Name: entry.Name})
	}

	sort.Slice(holidays, func(i, j int) bool { return holidays[i].Date < holidays[j].Date })
	return holidays, nil
}

// LoadSeedFile reads a YAML seed file from disk. An empty path falls back to
// the bundled seed table.
func LoadSeedFile(path string) ([]persistence.Holiday, error) {
	if path == "" {
		return ParseSeed(defaultSeed)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("holiday: failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}
