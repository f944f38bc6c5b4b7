package status

import "errors"

var (
	ErrRaceNotFound    = errors.New("race: race not found")
	ErrRaceUnavailable = errors.New("race: race is not available for this action")
	ErrAlreadyJoined   = errors.New("race: user already joined")
	ErrNotParticipant  = errors.New("race: user is not a participant")
	ErrInvalidMessage  = errors.New("race: wrong message format")
	ErrOutOfOrderWord  = errors.New("race: word typed out of order")
	ErrPersistence     = errors.New("race: persistence failure")
	ErrQuoteNotFound   = errors.New("quote: quote not found")
	ErrWrongPasscode   = errors.New("race: wrong passcode")
)
