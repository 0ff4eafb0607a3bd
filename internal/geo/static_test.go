package geo

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/model"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()

	off, err := NewStatic(model.Position{}, false)
	require.NoError(t, err)
	_, err = off.CurrentPosition(ctx)
	require.ErrorIs(t, err, errs.ErrPermissionDenied)

	var nilLoc *Static
	_, err = nilLoc.CurrentPosition(ctx)
	require.ErrorIs(t, err, errs.ErrPermissionDenied)

	on, err := NewStatic(model.Position{Lat: 52.52, Lng: 13.405}, true)
	require.NoError(t, err)
	p, err := on.CurrentPosition(ctx)
	require.NoError(t, err)
	require.Equal(t, 52.52, p.Lat)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = on.CurrentPosition(cctx)
	require.ErrorIs(t, err, context.Canceled)

	_, err = NewStatic(model.Position{Lat: 91}, true)
	require.Error(t, err)
	require.False(t, Valid(model.Position{Lat: math.NaN()}))
}
