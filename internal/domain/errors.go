package domain

import "errors"

var (
	ErrDuplicateMessage      = errors.New("duplicate message")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrMessageNotFound       = errors.New("message not found")
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrParticipantConstraint = errors.New("participant constraint violation")
	ErrInconsistentState     = errors.New("inconsistent dedup state")
)
