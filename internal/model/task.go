package model

import "time"

// Task priorities.
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
)

// Date and time layouts used for DueDate and DueTime.
const (
	DueDateLayout       = "2006-01-02"
	DueTimeLayout       = "15:04"
	DueTimeLayoutSecond = "15:04:05"
)

// Task is a single to-do item owned by one user.
// Username is set at creation and never reassigned.
type Task struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Username    string    `gorm:"index;not null" json:"username"`
	Title       string    `gorm:"not null" json:"title"`
	Description string    `json:"description"`
	Completed   bool      `gorm:"default:false" json:"completed"`
	DueDate     string    `json:"dueDate,omitempty"`
	DueTime     string    `json:"dueTime,omitempty"`
	Priority    string    `gorm:"default:MEDIUM" json:"priority"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

// HasDeadline reports whether both the due date and due time are set.
func (t Task) HasDeadline() bool {
	return t.DueDate != "" && t.DueTime != ""
}

// DueAt combines DueDate and DueTime into one instant in loc.
func (t Task) DueAt(loc *time.Location) (time.Time, error) {
	raw := t.DueDate + "T" + t.DueTime
	due, err := time.ParseInLocation(DueDateLayout+"T"+DueTimeLayout, raw, loc)
	if err == nil {
		return due, nil
	}
	return time.ParseInLocation(DueDateLayout+"T"+DueTimeLayoutSecond, raw, loc)
}
