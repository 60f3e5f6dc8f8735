package gorefit

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Pull is the residual of an estimated state to the truth, in units of the
// estimated error, on one detector.
type Pull struct {
	DetID  uint32
	Values []float64
}

// GroundTruth computes the error of estimated states from the known true states.
type GroundTruth struct {
	states map[uint32]TrajectoryState
}

// NewGroundTruth indexes the true states by the detector of their plane.
func NewGroundTruth(states []TrajectoryState) *GroundTruth {
	g := &GroundTruth{states: make(map[uint32]TrajectoryState, len(states))}
	for _, s := range states {
		if s.IsValid() {
			g.states[s.Surface().DetID] = s
		}
	}
	return g
}

func (g *GroundTruth) truthOn(est TrajectoryState) (TrajectoryState, error) {
	if !est.IsValid() {
		return TrajectoryState{}, fmt.Errorf("gorefit: cannot compare an invalid state to the truth")
	}
	truth, ok := g.states[est.Surface().DetID]
	if !ok {
		return TrajectoryState{}, fmt.Errorf("%w: truth for det %d", ErrNotFound, est.Surface().DetID)
	}
	return truth, nil
}

// Error returns the estimated minus the true parameters on the plane of est.
func (g *GroundTruth) Error(est TrajectoryState) ([]float64, error) {
	truth, err := g.truthOn(est)
	if err != nil {
		return nil, err
	}
	diff := make([]float64, NumParameters)
	floats.SubTo(diff, est.Parameters().RawVector().Data, truth.Parameters().RawVector().Data)
	return diff, nil
}

// Pull returns the error of est divided by its standard deviations.
func (g *GroundTruth) Pull(est TrajectoryState) (Pull, error) {
	diff, err := g.Error(est)
	if err != nil {
		return Pull{}, err
	}
	σ := make([]float64, NumParameters)
	for i := range σ {
		σ[i] = est.Error(i)
	}
	floats.Div(diff, σ)
	return Pull{DetID: est.Surface().DetID, Values: diff}, nil
}

// Pulls returns the pull of the updated state of every measurement of t.
func (g *GroundTruth) Pulls(t *Trajectory) ([]Pull, error) {
	pulls := make([]Pull, 0, t.Len())
	for _, tm := range t.Measurements() {
		p, err := g.Pull(tm.UpdatedState())
		if err != nil {
			return nil, err
		}
		pulls = append(pulls, p)
	}
	return pulls, nil
}
