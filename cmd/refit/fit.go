package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ChristopherRabotin/gorefit"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newFitCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Refit the events of a CSV file and export the smoothed trajectories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := os.Open(v.GetString("events"))
			if err != nil {
				return err
			}
			defer in.Close()
			events, err := gorefit.ReadEvents(in)
			if err != nil {
				return err
			}

			v.SetDefault("in_propagator_along_mom", gorefit.AnalyticalAlongLabel)
			v.SetDefault("out_propagator_along_mom", gorefit.AnalyticalAlongLabel)
			v.SetDefault("in_propagator_opposite_to_mom", gorefit.AnalyticalOppositeLabel)
			v.SetDefault("out_propagator_opposite_to_mom", gorefit.AnalyticalOppositeLabel)
			cfg, err := gorefit.ConfigFromViper(v)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			entry := log.WithField("cmd", "fit")
			refitter, err := gorefit.NewReFitter(cfg, gorefit.WithLogger(entry), gorefit.WithMetrics(gorefit.NewMetrics(reg)))
			if err != nil {
				return err
			}
			defer refitter.Close()
			if err := refitter.Configure(gorefit.NewStandardRegistry(field(v))); err != nil {
				return fmt.Errorf("configure: %w", err)
			}

			out := v.GetString("out")
			exp, err := gorefit.NewCSVExporter(filepath.Dir(out), filepath.Base(out))
			if err != nil {
				return err
			}
			failed := 0
			for _, ev := range events {
				res := ev.Refit(refitter)
				if len(res) == 0 {
					failed++
					entry.WithField("event", ev.ID).Warn("no trajectory")
					continue
				}
				if err := exp.Write(&res[0]); err != nil {
					exp.Close()
					return err
				}
				entry.WithFields(log.Fields{
					"event": ev.ID,
					"chi2":  fmt.Sprintf("%.2f", res[0].Chi2()),
					"ndof":  res[0].NDOF(),
				}).Debug("refitted")
			}
			if err := exp.Close(); err != nil {
				return err
			}

			families, err := reg.Gather()
			if err != nil {
				return err
			}
			for _, mf := range families {
				for _, m := range mf.GetMetric() {
					fields := log.Fields{}
					for _, l := range m.GetLabel() {
						fields[l.GetName()] = l.GetValue()
					}
					if c := m.GetCounter(); c != nil {
						fields["value"] = c.GetValue()
					}
					if h := m.GetHistogram(); h != nil {
						fields["count"] = h.GetSampleCount()
						fields["sum"] = h.GetSampleSum()
					}
					entry.WithFields(fields).Info(mf.GetName())
				}
			}
			entry.WithFields(log.Fields{"events": len(events), "failed": failed}).Info("refit done")
			return nil
		},
	}
	flags := cmd.Flags()
	flags.String("events", "events.csv", "input events")
	flags.String("out", "trajectories.csv", "output trajectories")
	flags.Int("granularity", 0, "0: whole hits, 1: hit components")
	flags.Float64("error_rescaling", gorefit.DefaultErrorRescaling, "smoother error rescaling")
	return cmd
}
