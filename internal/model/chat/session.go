package chat

import "time"

// Session captures a transient anonymous tutoring conversation.
type Session struct {
	ID        string    `json:"id"`
	TutorID   string    `json:"tutorId"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"createdAt"`
}
