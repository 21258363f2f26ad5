package timeutil

import "time"

// Now returns the current UTC time. Renewal arithmetic compares calendar
// days, so every timestamp in the service is kept in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// ParseDate parses a YYYY-MM-DD calendar date as midnight UTC, the form
// start and renewal dates are carried in.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, err
	}
	return StartOfDay(t), nil
}

// StartOfDay truncates a timestamp to midnight UTC
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ToUTC converts a time.Time to UTC if it isn't already
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}
