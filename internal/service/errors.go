package service

import "errors"

var (
	ErrPermissionDenied = errors.New("permission denied")
)
