package gorefit

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Noise generates the measurement noise of a pixel hit.
type Noise interface {
	Measurement() []float64          // Returns one draw of the measurement noise
	MeasurementMatrix() mat.Symmetric // Returns the measurement noise matrix R
}

// Noiseless implements the Noise interface and never perturbs a measurement.
type Noiseless struct {
	R mat.Symmetric
}

// NewNoiseless returns a noiseless generator with the covariance R reported to hits.
func NewNoiseless(R mat.Symmetric) *Noiseless {
	if R == nil {
		panic("R must be specified")
	}
	return &Noiseless{R}
}

// Measurement implements the Noise interface.
func (n Noiseless) Measurement() []float64 {
	return make([]float64, n.R.SymmetricDim())
}

// MeasurementMatrix implements the Noise interface.
func (n Noiseless) MeasurementMatrix() mat.Symmetric {
	return n.R
}

// AWGN implements the Noise interface and generates an additive white Gaussian noise.
type AWGN struct {
	R           mat.Symmetric
	measurement *distmv.Normal
}

// NewAWGN creates a new AWGN from R. The draws are reproducible for a given seed.
func NewAWGN(R mat.Symmetric, seed uint64) (*AWGN, error) {
	meas, ok := distmv.NewNormal(make([]float64, R.SymmetricDim()), R, rand.NewPCG(seed, seed+1))
	if !ok {
		return nil, errors.New("gorefit: measurement noise covariance is not positive definite")
	}
	return &AWGN{R, meas}, nil
}

// Measurement implements the Noise interface.
func (n AWGN) Measurement() []float64 {
	return n.measurement.Rand(nil)
}

// MeasurementMatrix implements the Noise interface.
func (n AWGN) MeasurementMatrix() mat.Symmetric {
	return n.R
}

// Event is the input of one refit: the starting state and the hits of a
// particle. Truth holds the true state on each hit plane when it is known.
type Event struct {
	ID    uuid.UUID
	Start TrajectoryState
	Hits  []Hit
	Truth []TrajectoryState
}

// Seed returns the along momentum seed of the event.
func (e Event) Seed() Seed {
	return Seed{ID: e.ID, State: e.Start, Direction: AlongMomentum}
}

// Refit fits and smooths the hits of the event from its starting state.
func (e Event) Refit(r *ReFitter) []Trajectory {
	return r.Trajectories(e.Seed(), e.Hits, e.Start)
}

// Simulator generates pixel hits of particles crossing a set of planes.
type Simulator struct {
	planes       []*Plane
	propagator   Propagator
	noise        Noise
	σx, σy       float64
	inefficiency float64
	rng          *rand.Rand
}

// NewSimulator returns a simulator transporting particles in field without
// scattering. Each plane misses its hit with probability inefficiency.
func NewSimulator(planes []*Plane, field MagneticField, noise Noise, inefficiency float64, seed uint64) (*Simulator, error) {
	if len(planes) == 0 {
		return nil, errors.New("gorefit: simulator needs at least one plane")
	}
	R := noise.MeasurementMatrix()
	if R.SymmetricDim() != 2 {
		return nil, fmt.Errorf("gorefit: pixel noise must be 2D, got %d", R.SymmetricDim())
	}
	if inefficiency < 0 || inefficiency >= 1 {
		return nil, fmt.Errorf("gorefit: inefficiency must be in [0, 1), got %f", inefficiency)
	}
	return &Simulator{
		planes:       planes,
		propagator:   NewAnalyticalPropagator(field, AlongMomentum).WithoutMaterial(),
		noise:        noise,
		σx:           math.Sqrt(R.At(0, 0)),
		σy:           math.Sqrt(R.At(1, 1)),
		inefficiency: inefficiency,
		rng:          rand.New(rand.NewPCG(seed, ^seed)),
	}, nil
}

// Generate transports start through every plane and returns the smeared hits.
func (s *Simulator) Generate(start TrajectoryState) (Event, error) {
	ev := Event{ID: uuid.New(), Start: start}
	state := start
	for _, plane := range s.planes {
		state = s.propagator.Propagate(state, plane)
		if !state.IsValid() {
			return Event{}, fmt.Errorf("gorefit: simulated track lost at %s", plane)
		}
		ev.Truth = append(ev.Truth, state)
		if s.inefficiency > 0 && s.rng.Float64() < s.inefficiency {
			ev.Hits = append(ev.Hits, NewInvalidHit(plane))
			continue
		}
		n := s.noise.Measurement()
		p := state.Parameters()
		ev.Hits = append(ev.Hits, NewPixelHit(plane, p.AtVec(ParamX)+n[0], p.AtVec(ParamY)+n[1], s.σx, s.σy))
	}
	return ev, nil
}
