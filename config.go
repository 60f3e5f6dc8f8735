package gorefit

import (
	"fmt"

	"github.com/spf13/viper"
)

// DefaultFieldLabel is the label of the magnetic field used when none is configured.
const DefaultFieldLabel = "ideal"

// Defaults of the numerical parameters of a ReFitter.
const (
	DefaultErrorRescaling   = 100.0
	DefaultEstimatorMaxChi2 = 20000.0
	DefaultUpdatorMaxChi2   = 1000.0
)

// DefaultArbitraryErrors are the variances of x, y, tx, ty and q/p given to the
// first predicted state of a fit.
var DefaultArbitraryErrors = []float64{100, 100, 1, 1, 1}

// Config holds the parameters of a ReFitter. The four propagator labels are
// mandatory; the other fields have defaults.
type Config struct {
	InPropagatorAlongMom       string      `mapstructure:"in_propagator_along_mom"`
	OutPropagatorAlongMom      string      `mapstructure:"out_propagator_along_mom"`
	InPropagatorOppositeToMom  string      `mapstructure:"in_propagator_opposite_to_mom"`
	OutPropagatorOppositeToMom string      `mapstructure:"out_propagator_opposite_to_mom"`
	MagneticField              string      `mapstructure:"magnetic_field"`
	ErrorRescaling             float64     `mapstructure:"error_rescaling"`
	EstimatorMaxChi2           float64     `mapstructure:"estimator_max_chi2"`
	UpdatorMaxChi2             float64     `mapstructure:"updator_max_chi2"`
	Granularity                Granularity `mapstructure:"granularity"`
	ArbitraryErrors            []float64   `mapstructure:"arbitrary_errors"`
}

// NewConfig returns a Config with the provided propagator labels and default values.
func NewConfig(inAlong, outAlong, inOpposite, outOpposite string) Config {
	return Config{
		InPropagatorAlongMom:       inAlong,
		OutPropagatorAlongMom:      outAlong,
		InPropagatorOppositeToMom:  inOpposite,
		OutPropagatorOppositeToMom: outOpposite,
		MagneticField:              DefaultFieldLabel,
		ErrorRescaling:             DefaultErrorRescaling,
		EstimatorMaxChi2:           DefaultEstimatorMaxChi2,
		UpdatorMaxChi2:             DefaultUpdatorMaxChi2,
		Granularity:                WholeHits,
		ArbitraryErrors:            append([]float64(nil), DefaultArbitraryErrors...),
	}
}

// Validate returns an error wrapping ErrMissingParameter if a label is absent, or
// describing the first invalid numerical parameter.
func (c Config) Validate() error {
	for key, label := range map[string]string{
		"in_propagator_along_mom":        c.InPropagatorAlongMom,
		"out_propagator_along_mom":       c.OutPropagatorAlongMom,
		"in_propagator_opposite_to_mom":  c.InPropagatorOppositeToMom,
		"out_propagator_opposite_to_mom": c.OutPropagatorOppositeToMom,
		"magnetic_field":                 c.MagneticField,
	} {
		if label == "" {
			return fmt.Errorf("%w: %s", ErrMissingParameter, key)
		}
	}
	if c.ErrorRescaling <= 0 {
		return fmt.Errorf("gorefit: error_rescaling must be positive, got %f", c.ErrorRescaling)
	}
	if c.EstimatorMaxChi2 <= 0 || c.UpdatorMaxChi2 <= 0 {
		return fmt.Errorf("gorefit: chi-square cuts must be positive, got %f and %f", c.EstimatorMaxChi2, c.UpdatorMaxChi2)
	}
	if c.Granularity != WholeHits && c.Granularity != ComponentHits {
		return fmt.Errorf("gorefit: unknown granularity %d", c.Granularity)
	}
	if len(c.ArbitraryErrors) != NumParameters {
		return fmt.Errorf("gorefit: arbitrary_errors needs %d variances, got %d", NumParameters, len(c.ArbitraryErrors))
	}
	for i, v := range c.ArbitraryErrors {
		if v <= 0 {
			return fmt.Errorf("gorefit: arbitrary error of %s must be positive, got %f", ParameterNames[i], v)
		}
	}
	return nil
}

// SetDefaults registers the default values of the numerical parameters on v.
// The propagator labels have no default.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("magnetic_field", DefaultFieldLabel)
	v.SetDefault("error_rescaling", DefaultErrorRescaling)
	v.SetDefault("estimator_max_chi2", DefaultEstimatorMaxChi2)
	v.SetDefault("updator_max_chi2", DefaultUpdatorMaxChi2)
	v.SetDefault("granularity", int(WholeHits))
	v.SetDefault("arbitrary_errors", DefaultArbitraryErrors)
}

// ConfigFromViper decodes and validates a Config from v.
func ConfigFromViper(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("gorefit: could not decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a configuration file (any format supported by viper).
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("gorefit: could not read %s: %w", path, err)
	}
	return ConfigFromViper(v)
}
