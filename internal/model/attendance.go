package model

import (
	"fmt"
	"time"
)

// AttendanceStatus is the outcome recorded for a user on a day.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusLate    AttendanceStatus = "late"
	StatusAbsent  AttendanceStatus = "absent"
)

// Valid reports whether s is a known status.
func (s AttendanceStatus) Valid() bool {
	return s == StatusPresent || s == StatusLate || s == StatusAbsent
}

// AttendanceMethod records how an entry was produced.
type AttendanceMethod string

const (
	MethodManual AttendanceMethod = "manual"
	MethodFace   AttendanceMethod = "face"
	MethodAuto   AttendanceMethod = "auto"
)

// Attendance is one (user, date) entry. RegNo is denormalized for faculty queries.
type Attendance struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	RegNo     string           `json:"regNo"`
	Date      string           `json:"date"`
	Time      string           `json:"time"`
	Status    AttendanceStatus `json:"status"`
	Method    AttendanceMethod `json:"method"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04:05"
)

// ParseDate validates a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// MonthRange returns the first day of month/year and the first day of the following month.
func MonthRange(month, year int) (string, string, error) {
	if month < 1 || month > 12 || year < 1970 || year > 9999 {
		return "", "", fmt.Errorf("invalid month %d/%d", month, year)
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start.Format(DateLayout), start.AddDate(0, 1, 0).Format(DateLayout), nil
}
