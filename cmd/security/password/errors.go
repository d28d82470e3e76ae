package password

import "errors"

var (
	ErrPasswordTooLong = errors.New("password too long")
	ErrInvalidHash     = errors.New("invalid password hash")
	ErrConfig          = errors.New("password config invalid")
)
