package prxw

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MaxFragments is the largest number of packets in one APDU.
	MaxFragments = 16

	// MaxAPDU is the largest APDU the window reassembles.
	MaxAPDU = MaxFragments * 1500
)

// Config is the configuration passed to [New].
type Config struct {
	// Largest transport packet, in bytes.
	MaxTPDU int `yaml:"max_tpdu"`

	// Window capacity in sequence numbers.
	// If zero, the capacity is derived from Duration and MaxRate.
	Sqns int `yaml:"sqns"`

	// How much data the window should hold at MaxRate,
	// when Sqns is zero.
	Duration time.Duration `yaml:"duration"`

	// Maximum sender rate in bytes per second,
	// used with Duration when Sqns is zero.
	MaxRate int64 `yaml:"max_rate"`

	// Number of original packets per FEC transmission group.
	// Zero or one disables transmission groups;
	// otherwise it must be a power of two.
	TransmissionGroupSize int `yaml:"transmission_group_size"`

	// Number of parity packets per transmission group.
	// Required when TransmissionGroupSize is greater than one.
	ParityCount int `yaml:"parity_count"`
}

// DefaultConfig returns the configuration used as the base
// for [ParseConfig].
// Its capacity fields are unset, so it is not valid on its own.
func DefaultConfig() Config {
	return Config{
		MaxTPDU: 1500,
	}
}

// Validate reports whether c can build a window.
func (c Config) Validate() error {
	var errs []error

	if c.MaxTPDU <= 0 || c.MaxTPDU > math.MaxUint16 {
		errs = append(errs, fmt.Errorf(
			"MaxTPDU must be in range [1, %d] (got %d)", math.MaxUint16, c.MaxTPDU,
		))
	}

	switch {
	case c.Sqns < 0:
		errs = append(errs, fmt.Errorf("Sqns must not be negative (got %d)", c.Sqns))
	case c.Sqns == 0:
		if c.Duration <= 0 {
			errs = append(errs, fmt.Errorf(
				"Duration must be positive when Sqns is zero (got %s)", c.Duration,
			))
		}
		if c.MaxRate <= 0 {
			errs = append(errs, fmt.Errorf(
				"MaxRate must be positive when Sqns is zero (got %d)", c.MaxRate,
			))
		}
	}

	if len(errs) == 0 {
		// Only meaningful once the individual fields are sane.
		if n := c.capacity(); n <= 0 || n >= int64(maxCapacity) {
			errs = append(errs, fmt.Errorf(
				"derived window capacity must be in range [1, %d) (got %d)", maxCapacity, n,
			))
		}
	}

	if c.TransmissionGroupSize < 0 {
		errs = append(errs, fmt.Errorf(
			"TransmissionGroupSize must not be negative (got %d)", c.TransmissionGroupSize,
		))
	}
	if c.ParityCount < 0 {
		errs = append(errs, fmt.Errorf(
			"ParityCount must not be negative (got %d)", c.ParityCount,
		))
	}

	return errors.Join(errs...)
}

// Windows must stay well inside half the sequence space
// for wraparound comparisons to hold.
const maxCapacity = 1 << 30

func (c Config) capacity() int64 {
	if c.Sqns > 0 {
		return int64(c.Sqns)
	}
	secs := c.Duration.Seconds()
	return int64(secs * float64(c.MaxRate) / float64(c.MaxTPDU))
}

// ParseConfig decodes YAML into a Config,
// starting from [DefaultConfig], and validates the result.
// Unknown fields are rejected.
//
// Durations use Go syntax, for example:
//
//	max_tpdu: 1500
//	duration: 10s
//	max_rate: 400000
func ParseConfig(b []byte) (Config, error) {
	return LoadConfig(bytes.NewReader(b))
}

// LoadConfig is like [ParseConfig] but reads from r.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to decode receive window config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid receive window config: %w", err)
	}

	return cfg, nil
}
