package gorefit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImplementsHit(t *testing.T) {
	implements := func(Hit) {}
	implements(new(PixelHit))
	implements(new(StripHit))
	implements(new(StereoHit))
	implements(new(InvalidHit))
	composite := func(CompositeHit) {}
	composite(new(StereoHit))
}

func TestStripHitProjection(t *testing.T) {
	h := NewStripHit(NewPlane(1, 0, 0, 0), math.Pi/2, 3, 0.1)
	H := h.Projection()
	r, c := H.Dims()
	require.Equal(t, 1, r)
	require.Equal(t, NumParameters, c)
	assert.InDelta(t, 0, H.At(0, ParamX), 1e-15)
	assert.InDelta(t, 1, H.At(0, ParamY), 1e-15)
	assert.InDelta(t, 0.01, h.Covariance().At(0, 0), 1e-15)
}

func TestStereoHit(t *testing.T) {
	plane := NewPlane(1, 0, 0, 0)
	u := NewStripHit(plane, 0, 1, 0.1)
	v := NewStripHit(plane, math.Pi/2, 2, 0.2)
	s, err := NewStereoHit(u, v)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Dimension())
	assert.Equal(t, 2.0, s.Parameters().AtVec(1))
	assert.InDelta(t, 0.04, s.Covariance().At(1, 1), 1e-15)
	assert.Equal(t, 0.0, s.Covariance().At(0, 1))
	assert.InDelta(t, 1, s.Projection().At(1, ParamY), 1e-15)
	assert.Len(t, s.Components(), 2)
	assert.Same(t, plane, s.Surface())

	_, err = NewStereoHit()
	assert.Error(t, err)
	_, err = NewStereoHit(u, NewStripHit(NewPlane(2, 1, 10, 0), 0, 1, 0.1))
	assert.Error(t, err)
	_, err = NewStereoHit(u, NewInvalidHit(plane))
	assert.Error(t, err)
}

func TestInvalidHit(t *testing.T) {
	plane := NewPlane(3, 2, 40, 0)
	h := NewInvalidHit(plane)
	assert.False(t, h.IsValid())
	assert.Same(t, plane, h.Surface())
	assert.Equal(t, 0, h.Dimension())
	assert.Nil(t, h.Parameters())
}
