package main

import (
	"strings"

	"github.com/ChristopherRabotin/gorefit"
	"github.com/golang/geo/r3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "refit",
		Short:         "Simulate and refit tracks in a planar telescope",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if path := v.GetString("config"); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return err
				}
			}
			level, err := log.ParseLevel(v.GetString("log-level"))
			if err != nil {
				return err
			}
			log.SetLevel(level)
			return nil
		},
	}
	v.SetEnvPrefix("REFIT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags := root.PersistentFlags()
	flags.String("config", "", "configuration file")
	flags.String("log-level", "info", "logrus level")
	flags.Float64("by", 1, "uniform field along y [T]")
	root.AddCommand(newSimulateCmd(v), newFitCmd(v))
	return root
}

func field(v *viper.Viper) gorefit.MagneticField {
	return gorefit.UniformField{B: r3.Vector{Y: v.GetFloat64("by")}}
}
