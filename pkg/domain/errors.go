package domain

import "errors"

// ErrDuplicateKey is returned by adapters when an insert collides with an existing primary key.
var ErrDuplicateKey = errors.New("duplicate session id")

// ErrLockTimeout is returned when a named lock could not be acquired within its wait budget.
var ErrLockTimeout = errors.New("session lock wait timeout")

// ErrNotOpen is returned when a lifecycle operation is called before Open.
var ErrNotOpen = errors.New("session store not open")

// ErrClosed is returned when a lifecycle operation is called after Close.
var ErrClosed = errors.New("session store closed")

// ErrInvalidConfig is returned when a store, adapter or config file is misconfigured.
var ErrInvalidConfig = errors.New("invalid configuration")
