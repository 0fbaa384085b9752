package store

import "errors"

// ErrNotFound is returned when a match or event does not exist.
var ErrNotFound = errors.New("not found")

// ErrActiveMatchExists is returned by CreateMatch when another match is
// still active. The caller must end or cancel the prior match first.
var ErrActiveMatchExists = errors.New("an active match already exists")

// ErrDuplicateSeq is returned when an append collides with an existing
// sequence number. Indicates a second writer, which the single-writer
// design forbids.
var ErrDuplicateSeq = errors.New("duplicate sequence number")
