// Package geo provides device locators for location messages.
package geo

import (
	"context"
	"fmt"
	"math"

	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/model"
)

// Static reports a fixed, user-configured position. A headless client has no
// positioning hardware, so location sharing is opt-in via config.
type Static struct {
	pos     model.Position
	enabled bool
}

// NewStatic returns a locator for pos. When enabled is false every lookup is
// refused with ErrPermissionDenied.
func NewStatic(pos model.Position, enabled bool) (*Static, error) {
	if enabled && !Valid(pos) {
		return nil, fmt.Errorf("validation: position %v out of range", pos)
	}
	return &Static{pos: pos, enabled: enabled}, nil
}

// CurrentPosition implements the composer Locator.
func (s *Static) CurrentPosition(ctx context.Context) (model.Position, error) {
	if err := ctx.Err(); err != nil {
		return model.Position{}, err
	}
	if s == nil || !s.enabled {
		return model.Position{}, errs.ErrPermissionDenied
	}
	return s.pos, nil
}

// Valid reports whether p is a finite WGS84 coordinate.
func Valid(p model.Position) bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
