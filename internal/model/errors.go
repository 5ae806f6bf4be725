package model

import "errors"

var (
	ErrQueryInFlight = errors.New("query already in flight")
	ErrStaleQuery    = errors.New("query is no longer awaited")
)
