package model

import "time"

type LeaveType string

const (
	LeaveSick   LeaveType = "sick"
	LeavePaid   LeaveType = "paid"
	LeaveUnpaid LeaveType = "unpaid"
)

func (t LeaveType) Valid() bool {
	return t == LeaveSick || t == LeavePaid || t == LeaveUnpaid
}

type LeaveStatus string

const (
	LeavePending  LeaveStatus = "pending"
	LeaveApproved LeaveStatus = "approved"
	LeaveRejected LeaveStatus = "rejected"
)

// Leave is a request for absence over an inclusive date range.
type Leave struct {
	ID         string      `json:"id"`
	UserID     string      `json:"userId"`
	Type       LeaveType   `json:"type"`
	FromDate   string      `json:"fromDate"`
	ToDate     string      `json:"toDate"`
	Reason     string      `json:"reason"`
	Status     LeaveStatus `json:"status"`
	ReviewedBy string      `json:"reviewedBy,omitempty"`
	ReviewedAt *time.Time  `json:"reviewedAt,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// Covers reports whether date (YYYY-MM-DD) falls inside the leave range.
func (l *Leave) Covers(date string) bool {
	return l.FromDate <= date && date <= l.ToDate
}
