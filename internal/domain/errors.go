// Package domain contains the core domain models for the content scheduler.
package domain

import "errors"

// ErrNotFound is returned when an entity is not found in the database.
var ErrNotFound = errors.New("entity not found")

// ErrInvalidProgram is returned when creating or mutating a program with invalid fields.
var ErrInvalidProgram = errors.New("invalid program")

// ErrInvalidRecurrence is returned for an unusable recurrence policy
// (unknown type, malformed time-of-day, bad cron expression).
var ErrInvalidRecurrence = errors.New("invalid recurrence policy")

// ErrInvalidSchedule is returned when a publication schedule fails validation.
var ErrInvalidSchedule = errors.New("invalid publication schedule")

// ErrEmptyActiveWindow is returned when a schedule has no active hours or
// days, which would make slot adjustment loop forever.
var ErrEmptyActiveWindow = errors.New("publication schedule has empty active window")

// ErrInvalidQueueEntry is returned when creating a queue entry with invalid fields.
var ErrInvalidQueueEntry = errors.New("invalid queue entry")

// ErrInvalidStateTransition is returned when a lifecycle method is called
// on an entity whose current status does not allow it.
var ErrInvalidStateTransition = errors.New("invalid state transition")

// ErrContentKindMismatch is returned when completing an item with content
// whose kind does not match the item's generation type.
var ErrContentKindMismatch = errors.New("content kind does not match generation type")
