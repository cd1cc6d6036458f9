package model

import "time"

// Weekdays accepted in schedule slots.
var Weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

type ScheduleSlot struct {
	CourseTitle string `json:"courseTitle"`
	CourseCode  string `json:"courseCode"`
	FacultyID   string `json:"faculty"`
	Weekday     string `json:"weekday"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	Description string `json:"description,omitempty"`
}

// Schedule is a weekly timetable for one (semester, section, year, batch).
type Schedule struct {
	ID         string         `json:"id"`
	Semester   string         `json:"semester"`
	Venue      string         `json:"venue"`
	Regulation string         `json:"regulation"`
	Section    int            `json:"section"`
	Batch      int            `json:"batch"`
	Department string         `json:"department"`
	Year       int            `json:"year"`
	CreatedBy  string         `json:"createdBy"`
	Slots      []ScheduleSlot `json:"slots"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

type Holiday struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Date        string    `json:"date"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Announcement targets the listed roles, or everyone when TargetRoles is empty.
type Announcement struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	PostedBy    string    `json:"postedBy"`
	TargetRoles []Role    `json:"targetRoles"`
	ReadBy      []string  `json:"readBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// VisibleTo reports whether u may read the announcement.
func (a *Announcement) VisibleTo(u *User) bool {
	if u.Role == RoleAdmin || a.PostedBy == u.ID || len(a.TargetRoles) == 0 {
		return true
	}
	return u.Role.In(a.TargetRoles...)
}

// Message is one chat line between two users. Room is the sorted id pair.
type Message struct {
	ID        string    `json:"id" bson:"_id"`
	Room      string    `json:"room" bson:"room"`
	Sender    string    `json:"sender" bson:"sender"`
	Receiver  string    `json:"receiver" bson:"receiver"`
	Content   string    `json:"content" bson:"content"`
	Seen      bool      `json:"seen" bson:"seen"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}
