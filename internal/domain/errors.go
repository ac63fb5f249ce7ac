package domain

import (
	"errors"
	"fmt"
)

// ErrInputRejected is the parent of every user-correctable submission error.
var ErrInputRejected = errors.New("input rejected")

var (
	ErrInvalidTitle = fmt.Errorf("%w: invalid title", ErrInputRejected)
	ErrInvalidURL   = fmt.Errorf("%w: invalid url", ErrInputRejected)
)
