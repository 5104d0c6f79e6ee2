package utils

import (
	"time"
	_ "time/tzdata" // embedded zone database for minimal images
)

// LoadLocation resolves an IANA timezone name, falling back to UTC when
// the name is empty or the tz database does not know it
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsValidTimezone reports whether name is a loadable IANA timezone
func IsValidTimezone(name string) bool {
	if name == "" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

// InZone converts t to the named timezone
func InZone(t time.Time, name string) time.Time {
	return t.In(LoadLocation(name))
}

// FormatInZone renders t in the named timezone for display
func FormatInZone(t time.Time, name string) string {
	return InZone(t, name).Format("2006-01-02 15:04:05 MST")
}
