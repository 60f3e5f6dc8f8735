package gorefit

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// MonteCarloRuns stores the pulls of repeated refits of simulated events.
type MonteCarloRuns struct {
	steps  int
	Runs   []MonteCarloRun
	Failed int
}

// MonteCarloRun stores one smoothed trajectory and its pulls, in measurement order.
type MonteCarloRun struct {
	Event      Event
	Trajectory Trajectory
	Pulls      []Pull
}

// NewMonteCarloRuns simulates samples events from start and refits each of them.
// Events whose refit returns no trajectory are counted in Failed.
func NewMonteCarloRuns(samples int, sim *Simulator, start TrajectoryState, r *ReFitter) (MonteCarloRuns, error) {
	mc := MonteCarloRuns{steps: -1}
	for sample := 0; sample < samples; sample++ {
		ev, err := sim.Generate(start)
		if err != nil {
			return MonteCarloRuns{}, err
		}
		res := ev.Refit(r)
		if len(res) == 0 {
			mc.Failed++
			continue
		}
		pulls, err := NewGroundTruth(ev.Truth).Pulls(&res[0])
		if err != nil {
			return MonteCarloRuns{}, fmt.Errorf("sample #%d: %w", sample, err)
		}
		if mc.steps < 0 || len(pulls) < mc.steps {
			mc.steps = len(pulls)
		}
		mc.Runs = append(mc.Runs, MonteCarloRun{Event: ev, Trajectory: res[0], Pulls: pulls})
	}
	if mc.steps < 0 {
		mc.steps = 0
	}
	return mc, nil
}

// Steps returns the number of measurements common to all runs.
func (mc MonteCarloRuns) Steps() int {
	return mc.steps
}

func (mc MonteCarloRuns) samples(step int) [][]float64 {
	values := make([][]float64, NumParameters)
	for i := range values {
		values[i] = make([]float64, len(mc.Runs))
	}
	for r, run := range mc.Runs {
		for i, v := range run.Pulls[step].Values {
			values[i][r] = v
		}
	}
	return values
}

// Mean returns the mean pull of every parameter at the given step.
func (mc MonteCarloRuns) Mean(step int) []float64 {
	means := make([]float64, NumParameters)
	for i, v := range mc.samples(step) {
		means[i] = stat.Mean(v, nil)
	}
	return means
}

// StdDev returns the standard deviation of the pulls of every parameter at the given step.
func (mc MonteCarloRuns) StdDev(step int) []float64 {
	devs := make([]float64, NumParameters)
	for i, v := range mc.samples(step) {
		devs[i] = stat.StdDev(v, nil)
	}
	return devs
}

// AsCSV returns one CSV document per parameter, one line per step with the pull
// of every run followed by the mean and standard deviation.
func (mc MonteCarloRuns) AsCSV() []string {
	rtn := make([]string, NumParameters)
	for i, header := range ParameterNames {
		lines := make([]string, mc.steps+1)
		for rNo := range mc.Runs {
			lines[0] += fmt.Sprintf("%s-%d,", header, rNo)
		}
		lines[0] += header + "-mean," + header + "-stddev"
		for k := 0; k < mc.steps; k++ {
			mean, stddev := mc.Mean(k), mc.StdDev(k)
			for _, run := range mc.Runs {
				lines[k+1] += fmt.Sprintf("%f,", run.Pulls[k].Values[i])
			}
			lines[k+1] += fmt.Sprintf("%f,%f", mean[i], stddev[i])
		}
		rtn[i] = strings.Join(lines, "\n")
	}
	return rtn
}
