package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Date is a trading day encoded as YYYYMMDD. The zero value means "no date".
type Date int32

// DateOf converts a time to its calendar day in the time's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date(y*10000 + int(m)*100 + d)
}

// ParseDate accepts "20240102" or "2024-01-02".
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "-") {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return 0, fmt.Errorf("parse date %q: %w", s, err)
		}
		return DateOf(t), nil
	}
	if len(s) != 8 {
		return 0, fmt.Errorf("parse date %q: want YYYYMMDD", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", s, err)
	}
	d := Date(n)
	if !d.Valid() {
		return 0, fmt.Errorf("parse date %q: out of range", s)
	}
	return d, nil
}

// Valid reports whether d names a real calendar day.
func (d Date) Valid() bool {
	if d <= 0 {
		return false
	}
	y, m, day := int(d)/10000, int(d)/100%100, int(d)%100
	t := time.Date(y, time.Month(m), day, 0, 0, 0, 0, time.UTC)
	return t.Year() == y && int(t.Month()) == m && t.Day() == day
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(int(d)/10000, time.Month(int(d)/100%100), int(d)%100, 0, 0, 0, 0, time.UTC)
}

// String formats d as YYYY-MM-DD.
func (d Date) String() string {
	if d == 0 {
		return ""
	}
	return d.Time().Format(time.DateOnly)
}

// MarshalYAML and UnmarshalYAML let config files carry dates as "2024-01-02".
func (d Date) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Date) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
