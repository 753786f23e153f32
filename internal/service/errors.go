package service

import "errors"

var (
	ErrInvalidSession = errors.New("room id and user id must not be empty")
	ErrInternalServer = errors.New("internal server error")
)
