// Package lifecycle derives a dataset's verification stage from its lifecycle
// events and decides whether a new event is an in-order transition.
package lifecycle

import (
	"fmt"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/apperr"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/models"
)

// Stage is a position in UPLOAD -> ANALYZED -> VERIFIED.
type Stage int

const (
	StageNone Stage = iota
	StageUploaded
	StageAnalyzed
	StageVerified
)

func (s Stage) String() string {
	switch s {
	case StageUploaded:
		return "UPLOADED"
	case StageAnalyzed:
		return "ANALYZED"
	case StageVerified:
		return "VERIFIED"
	default:
		return "NONE"
	}
}

// MarshalText lets Stage render as its name in JSON.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// stageOf maps an event type to the stage it establishes. Event types outside
// the pipeline (VERSIONED, BLOCKCHAIN_REGISTERED, custom types) return false.
func stageOf(eventType string) (Stage, bool) {
	switch eventType {
	case models.LifecycleUpload:
		return StageUploaded, true
	case models.LifecycleAnalyzed:
		return StageAnalyzed, true
	case models.LifecycleVerified:
		return StageVerified, true
	}
	return StageNone, false
}

// Derive returns the furthest stage reached by events.
func Derive(events []models.LifecycleEvent) Stage {
	stage := StageNone
	for _, ev := range events {
		if s, ok := stageOf(ev.EventType); ok && s > stage {
			stage = s
		}
	}
	return stage
}

// Check reports whether eventType may follow current. Re-entering the same or an
// earlier stage is allowed (re-analysis, repeated registration); skipping ahead is not.
func Check(current Stage, eventType string) error {
	next, ok := stageOf(eventType)
	if !ok {
		return nil
	}
	if next > current+1 {
		return fmt.Errorf("%s requires stage %s, dataset is at %s: %w", eventType, next-1, current, apperr.ErrConflict)
	}
	return nil
}
