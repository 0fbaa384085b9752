package controller

import "errors"

// ErrNoActiveMatch is returned when an operation needs an active match
// and none exists. Remote commands hitting this are no-ops.
var ErrNoActiveMatch = errors.New("no active match")

// ErrMatchActive is returned by StartMatch while another match is live.
var ErrMatchActive = errors.New("a match is already active")

// ErrNotRecording is returned by MarkHighlight outside a recording.
var ErrNotRecording = errors.New("not recording")

// ErrHighlightPending is returned when a highlight is marked while a
// prior mark still awaits attribution. The caller must wait for the
// next point (or explicit attribution) to resolve it.
var ErrHighlightPending = errors.New("a highlight is already pending attribution")

// ErrNoPointsInGame is returned by EndGame when no rally has been
// played in the current game.
var ErrNoPointsInGame = errors.New("no points in current game")

// ErrGameTied is returned by EndGame when the score is level - a tied
// game has no winner to record.
var ErrGameTied = errors.New("game is tied")

// ErrStopped is returned when the controller's command loop has shut
// down and can no longer accept work.
var ErrStopped = errors.New("controller stopped")
