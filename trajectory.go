package gorefit

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Seed is the initial track hypothesis the refit starts from.
type Seed struct {
	ID        uuid.UUID
	State     TrajectoryState
	Direction PropagationDirection
}

// NewSeed returns a seed with a fresh identifier.
func NewSeed(state TrajectoryState, dir PropagationDirection) Seed {
	return Seed{ID: uuid.New(), State: state, Direction: dir}
}

// TrajectoryMeasurement is the contribution of one hit to a trajectory.
type TrajectoryMeasurement struct {
	forward, backward, updated TrajectoryState
	hit                        Hit
	estimate                   float64
	layer                      int
}

// NewTrajectoryMeasurement returns a measurement with a forward predicted state
// only. Its updated state is the forward predicted state.
func NewTrajectoryMeasurement(forward TrajectoryState, hit Hit, estimate float64) TrajectoryMeasurement {
	return TrajectoryMeasurement{forward: forward, updated: forward, hit: hit, estimate: estimate, layer: layerOf(hit)}
}

// NewUpdatedMeasurement returns a measurement with a forward predicted and an updated state.
func NewUpdatedMeasurement(forward, updated TrajectoryState, hit Hit, estimate float64) TrajectoryMeasurement {
	return TrajectoryMeasurement{forward: forward, updated: updated, hit: hit, estimate: estimate, layer: layerOf(hit)}
}

// NewSmoothedMeasurement returns a measurement with forward and backward predicted states
// and the state obtained from both.
func NewSmoothedMeasurement(forward, backward, updated TrajectoryState, hit Hit, estimate float64) TrajectoryMeasurement {
	return TrajectoryMeasurement{forward: forward, backward: backward, updated: updated, hit: hit, estimate: estimate, layer: layerOf(hit)}
}

func layerOf(hit Hit) int {
	if hit == nil || hit.Surface() == nil {
		return -1
	}
	return hit.Surface().Layer
}

// ForwardPredictedState returns the state predicted by the forward pass.
func (tm TrajectoryMeasurement) ForwardPredictedState() TrajectoryState { return tm.forward }

// BackwardPredictedState returns the state predicted by the backward pass, if any.
func (tm TrajectoryMeasurement) BackwardPredictedState() TrajectoryState { return tm.backward }

// UpdatedState returns the filtered (fit) or smoothed (smooth) state.
func (tm TrajectoryMeasurement) UpdatedState() TrajectoryState { return tm.updated }

// Hit returns the hit of the measurement.
func (tm TrajectoryMeasurement) Hit() Hit { return tm.hit }

// Estimate returns the chi-square of the hit.
func (tm TrajectoryMeasurement) Estimate() float64 { return tm.estimate }

// Layer returns the detector layer of the hit, -1 if unknown.
func (tm TrajectoryMeasurement) Layer() int { return tm.layer }

func (tm TrajectoryMeasurement) String() string {
	det := uint32(0)
	if tm.hit != nil && tm.hit.Surface() != nil {
		det = tm.hit.Surface().DetID
	}
	return fmt.Sprintf("TM{det=%d layer=%d valid=%t χ²=%.3f}", det, tm.layer, tm.hit != nil && tm.hit.IsValid(), tm.estimate)
}

// Trajectory is an append-only sequence of measurements built from a seed.
type Trajectory struct {
	seed         Seed
	direction    PropagationDirection
	measurements []TrajectoryMeasurement
	chi2         float64
	foundHits    int
	lostHits     int
	ndof         int
	valid        bool
}

// NewTrajectory returns an empty trajectory.
func NewTrajectory(seed Seed, dir PropagationDirection) *Trajectory {
	return &Trajectory{seed: seed, direction: dir, valid: true}
}

// Push appends a measurement, adding its estimate to the chi-square if its hit is valid.
func (t *Trajectory) Push(tm TrajectoryMeasurement) {
	t.PushWithChi2(tm, tm.Estimate())
}

// PushWithChi2 appends a measurement and adds chi2Increment to the chi-square if
// its hit is valid. A measurement without a valid updated state invalidates the
// trajectory.
func (t *Trajectory) PushWithChi2(tm TrajectoryMeasurement, chi2Increment float64) {
	t.measurements = append(t.measurements, tm)
	if tm.hit != nil && tm.hit.IsValid() {
		t.chi2 += chi2Increment
		t.foundHits++
		t.ndof += tm.hit.Dimension()
	} else {
		t.lostHits++
	}
	if !tm.updated.IsValid() {
		t.valid = false
	}
}

// Invalidate marks the trajectory as invalid.
func (t *Trajectory) Invalidate() {
	t.valid = false
}

// IsValid returns whether the trajectory was not invalidated and holds at least one measurement.
func (t *Trajectory) IsValid() bool {
	return t.valid && len(t.measurements) > 0
}

// IsEmpty returns whether the trajectory has no measurements.
func (t *Trajectory) IsEmpty() bool {
	return len(t.measurements) == 0
}

// Seed returns the seed of the trajectory.
func (t *Trajectory) Seed() Seed { return t.seed }

// Direction returns the propagation direction the measurements were pushed in.
func (t *Trajectory) Direction() PropagationDirection { return t.direction }

// Len returns the number of measurements.
func (t *Trajectory) Len() int { return len(t.measurements) }

// Measurements returns a copy of the measurements in push order.
func (t *Trajectory) Measurements() []TrajectoryMeasurement {
	return append([]TrajectoryMeasurement(nil), t.measurements...)
}

// FirstMeasurement returns the first pushed measurement. It panics on an empty trajectory.
func (t *Trajectory) FirstMeasurement() TrajectoryMeasurement {
	if t.IsEmpty() {
		panic("gorefit: FirstMeasurement of an empty trajectory")
	}
	return t.measurements[0]
}

// LastMeasurement returns the last pushed measurement. It panics on an empty trajectory.
func (t *Trajectory) LastMeasurement() TrajectoryMeasurement {
	if t.IsEmpty() {
		panic("gorefit: LastMeasurement of an empty trajectory")
	}
	return t.measurements[len(t.measurements)-1]
}

// Hits returns the hits in push order.
func (t *Trajectory) Hits() []Hit {
	hits := make([]Hit, len(t.measurements))
	for i, tm := range t.measurements {
		hits[i] = tm.hit
	}
	return hits
}

// Chi2 returns the accumulated chi-square.
func (t *Trajectory) Chi2() float64 { return t.chi2 }

// FoundHits returns the number of valid hits.
func (t *Trajectory) FoundHits() int { return t.foundHits }

// LostHits returns the number of invalid hits.
func (t *Trajectory) LostHits() int { return t.lostHits }

// NDOF returns the number of degrees of freedom of the chi-square.
func (t *Trajectory) NDOF() int {
	return t.ndof - NumParameters
}

// ChiSquaredProbability returns the fit probability of the trajectory.
func (t *Trajectory) ChiSquaredProbability() float64 {
	return ChiSquaredProbability(t.chi2, t.NDOF())
}

func (t *Trajectory) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Trajectory{seed=%s dir=%s valid=%t χ²=%.3f ndof=%d\n", t.seed.ID, t.direction, t.IsValid(), t.chi2, t.NDOF())
	for _, tm := range t.measurements {
		fmt.Fprintf(&sb, "  %s\n", tm)
	}
	sb.WriteString("}")
	return sb.String()
}
