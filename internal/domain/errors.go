package domain

import "errors"

// Kind classifies failures so transports can react without parsing messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindInvalidState
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is a domain failure with a human-readable message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// KindOf returns the kind of the first domain error in err's chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

var (
	// ErrSessionIDRequired is returned when a session id is blank.
	ErrSessionIDRequired = &Error{Kind: KindValidation, Message: "sessionId is required"}
	// ErrQuestionIDRequired is returned when an answer names no question.
	ErrQuestionIDRequired = &Error{Kind: KindValidation, Message: "questionId is required"}
	// ErrResponseRequired is returned when an answer carries no response value.
	ErrResponseRequired = &Error{Kind: KindValidation, Message: "response is required"}
	// ErrQuestionOutOfOrder rejects answers for anything but the pending question.
	ErrQuestionOutOfOrder = &Error{Kind: KindValidation, Message: "provided question is not the next pending question"}

	// ErrSessionNotFound is returned when a session id does not exist.
	ErrSessionNotFound = &Error{Kind: KindNotFound, Message: "session not found"}
	// ErrUserNotFound is returned when an explicit user id does not exist.
	ErrUserNotFound = &Error{Kind: KindNotFound, Message: "user not found for provided userId"}

	// ErrSessionNotActive is returned when answering a completed session.
	ErrSessionNotActive = &Error{Kind: KindInvalidState, Message: "session is no longer active"}
	// ErrAllQuestionsAnswered is returned when no pending question remains.
	ErrAllQuestionsAnswered = &Error{Kind: KindInvalidState, Message: "all questions are already answered"}

	// ErrAnswerExists signals a lost race on the (session, question) uniqueness constraint.
	ErrAnswerExists = &Error{Kind: KindConflict, Message: "answer already recorded for this question"}
	// ErrEmailTaken signals a lost race on the user email uniqueness constraint.
	ErrEmailTaken = &Error{Kind: KindConflict, Message: "a user with this email already exists"}
)
