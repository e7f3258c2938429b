package domain

import "errors"

var (
	ErrInvalidID        = errors.New("invalid id")
	ErrInvalidTitle     = errors.New("invalid title")
	ErrInvalidPriority  = errors.New("invalid priority")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrInvalidPath      = errors.New("invalid path")
	ErrInvalidStore     = errors.New("invalid store")
	ErrInvalidRole      = errors.New("invalid role")
	ErrStatusRegression = errors.New("status cannot move from completed back to pending")
)
