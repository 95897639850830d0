// services/errors.go
package services

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the PPLP services. Handlers map them to HTTP
// statuses with errors.Is; callers wrap them with context via %w.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrDuplicateAction  = errors.New("duplicate action within 24h window")
	ErrAlreadyScored    = errors.New("action already scored")
	ErrNoPassingActions = errors.New("no actions with a passing decision")
	ErrMintBlocked      = errors.New("minting blocked by fraud risk")
	ErrConflict         = errors.New("state conflict")
)

// ErrMixedActors is a validation failure: one mint request pays one actor.
var ErrMixedActors = fmt.Errorf("%w: actions belong to more than one actor", ErrValidation)
