package main

import (
	"fmt"
	"os"

	"github.com/ChristopherRabotin/gorefit"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newSimulateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate events in a telescope and write them as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			planes := gorefit.NewTelescope(v.GetInt("planes"), v.GetFloat64("z0"), v.GetFloat64("spacing"), v.GetFloat64("thickness"))
			σ := v.GetFloat64("sigma")
			noise, err := gorefit.NewAWGN(gorefit.Diagonal(σ*σ, σ*σ), v.GetUint64("seed"))
			if err != nil {
				return err
			}
			sim, err := gorefit.NewSimulator(planes, field(v), noise, v.GetFloat64("inefficiency"), v.GetUint64("seed"))
			if err != nil {
				return err
			}
			start, err := gorefit.NewTrajectoryState(planes[0],
				[]float64{v.GetFloat64("x"), v.GetFloat64("y"), v.GetFloat64("tx"), v.GetFloat64("ty"), v.GetFloat64("qop")},
				gorefit.Diagonal(gorefit.DefaultArbitraryErrors...), 1)
			if err != nil {
				return err
			}

			events := make([]gorefit.Event, 0, v.GetInt("events"))
			for i := 0; i < v.GetInt("events"); i++ {
				ev, err := sim.Generate(start)
				if err != nil {
					return fmt.Errorf("event #%d: %w", i, err)
				}
				events = append(events, ev)
			}

			f, err := os.Create(v.GetString("out"))
			if err != nil {
				return err
			}
			defer f.Close()
			if err := gorefit.WriteEvents(f, events); err != nil {
				return err
			}
			log.WithFields(log.Fields{"events": len(events), "out": v.GetString("out")}).Info("simulation written")
			return nil
		},
	}
	flags := cmd.Flags()
	flags.Int("planes", 6, "number of telescope planes")
	flags.Float64("z0", 0, "z of the first plane [cm]")
	flags.Float64("spacing", 20, "distance between planes [cm]")
	flags.Float64("thickness", 0, "plane thickness [x/X0]")
	flags.Float64("sigma", 0.01, "hit resolution [cm]")
	flags.Float64("inefficiency", 0, "probability of a missing hit")
	flags.Int("events", 100, "number of events")
	flags.Uint64("seed", 1, "random seed")
	flags.Float64("x", 0, "start x [cm]")
	flags.Float64("y", 0, "start y [cm]")
	flags.Float64("tx", 0.05, "start dx/dz")
	flags.Float64("ty", -0.02, "start dy/dz")
	flags.Float64("qop", 0.1, "start q/p [1/GeV]")
	flags.String("out", "events.csv", "output file")
	return cmd
}
