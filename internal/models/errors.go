package models

import "errors"

var (
	ErrTooManyParticipants  = errors.New("direct chat has more than two participants")
	ErrDuplicateParticipant = errors.New("direct chat lists the same account twice")
	ErrForeignParticipant   = errors.New("participant belongs to another chat")
)
