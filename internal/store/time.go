package store

import "time"

const isoLayout = time.RFC3339Nano

// nowISO returns the current UTC instant formatted as ISO-8601.
func nowISO() string {
	return formatISO(time.Now().UTC())
}

// formatISO renders t as an ISO-8601 UTC string.
func formatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// parseISO parses an ISO-8601 string previously produced by formatISO.
func parseISO(s string) (time.Time, error) {
	return time.Parse(isoLayout, s)
}

// nullableISO formats an optional time.Time as a nullable string for
// interface{} binding, or nil if absent.
func nullableISO(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatISO(*t)
}

// parseNullableISO parses a nullable ISO string into a *time.Time.
func parseNullableISO(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseISO(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
