package domain

import "errors"

var (
	ErrValidation         = errors.New("validation error")
	ErrDeadlinePassed     = errors.New("voting deadline has passed")
	ErrDuplicateSubmitter = errors.New("email has already submitted an idea")
	ErrAlreadyVoted       = errors.New("email has already voted")
	ErrProposalNotFound   = errors.New("idea not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
