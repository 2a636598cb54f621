package domain

import "time"

// InputType hints how a question's answer is captured and normalized.
type InputType string

const (
	InputText   InputType = "TEXT"
	InputEmail  InputType = "EMAIL"
	InputNumber InputType = "NUMBER"
	InputPhone  InputType = "PHONE"
	InputDate   InputType = "DATE"
)

// Valid reports whether t is a known input type.
func (t InputType) Valid() bool {
	switch t {
	case InputText, InputEmail, InputNumber, InputPhone, InputDate:
		return true
	}
	return false
}

// SessionStatus is the lifecycle state of a conversation session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
)

// EventType names an entry in the conversation audit log.
type EventType string

const (
	EventSessionStarted   EventType = "SESSION_STARTED"
	EventQuestionAsked    EventType = "QUESTION_ASKED"
	EventAnswerRecorded   EventType = "ANSWER_RECORDED"
	EventSessionCompleted EventType = "SESSION_COMPLETED"
)

// Question is one entry of the ordered catalog.
type Question struct {
	ID          string    `json:"id"`
	FieldKey    string    `json:"fieldKey"`
	DisplayText string    `json:"displayText"`
	Order       int       `json:"order"`
	InputType   InputType `json:"inputType"`
	HelpText    *string   `json:"helpText"`
	IsActive    bool      `json:"isActive"`
}

// User is an optional respondent identity.
type User struct {
	ID          string    `json:"id"`
	Email       *string   `json:"email"`
	DisplayName *string   `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

// UserDescriptor is the caller-supplied hint used to resolve a user.
type UserDescriptor struct {
	UserID      string `json:"userId,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Session tracks a single walk through the catalog.
type Session struct {
	ID          string        `json:"id"`
	UserID      *string       `json:"userId"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	CompletedAt *time.Time    `json:"completedAt"`
}

// Answer is the normalized response to one question within a session.
type Answer struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	QuestionID string    `json:"questionId"`
	Response   string    `json:"response"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Event is an immutable audit log entry.
type Event struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Type      EventType      `json:"eventType"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
}
