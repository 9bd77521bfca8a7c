package sim

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"pedsim/internal/force"
	"pedsim/internal/integrate"
	"pedsim/internal/wayfinding"
)

// SpeedDistribution is a Gaussian from which per-pedestrian speeds are drawn.
type SpeedDistribution struct {
	Mean   float64 `json:"mean"`    // m/s
	StdDev float64 `json:"std_dev"` // m/s
}

func (d SpeedDistribution) sample(rng *rand.Rand) float64 {
	return math.Max(0, d.Mean+d.StdDev*rng.NormFloat64())
}

// Config holds everything a simulation is constructed from.
type Config struct {
	Integrator string            `json:"integrator"`
	Force      force.Parameters  `json:"force"`
	Wayfinding wayfinding.Tuning `json:"wayfinding"`

	NormalSpeed SpeedDistribution `json:"normal_speed"`
	MaxSpeed    SpeedDistribution `json:"max_speed"`

	WayPointWidth float64 `json:"waypoint_width"` // m, used when a waypoint has none
	WaitingPeriod float64 `json:"waiting_period"` // s, used when a waypoint has none

	// Workers sizes the pool; 0 selects runtime.NumCPU and a negative value
	// moves groups inline on the ticking goroutine.
	Workers   int `json:"workers"`
	QueueSize int `json:"queue_size"`

	StallWarning float64 `json:"stall_warning"` // s before a slow tick is logged
	StrictRoutes bool    `json:"strict_routes"`
	Seed         int64   `json:"seed"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Integrator:    integrate.SemiImplicitEulerName,
		Force:         force.DefaultParameters(),
		Wayfinding:    wayfinding.DefaultTuning(),
		NormalSpeed:   SpeedDistribution{Mean: 1.3, StdDev: 0.2},
		MaxSpeed:      SpeedDistribution{Mean: 1.8, StdDev: 0.2},
		WayPointWidth: 2,
		WaitingPeriod: 0,
		QueueSize:     4096,
		StallWarning:  2,
		Seed:          1,
	}
}

// LoadConfig reads a JSON file over the defaults and validates the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes JSON over the defaults. Unknown fields are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if _, err := integrate.ByName(c.Integrator); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Force.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch {
	case c.NormalSpeed.Mean < 0 || c.NormalSpeed.StdDev < 0:
		return fmt.Errorf("config: normal_speed must not be negative, got %+v", c.NormalSpeed)
	case c.MaxSpeed.Mean < 0 || c.MaxSpeed.StdDev < 0:
		return fmt.Errorf("config: max_speed must not be negative, got %+v", c.MaxSpeed)
	case c.WayPointWidth < 0:
		return fmt.Errorf("config: waypoint_width must not be negative, got %v", c.WayPointWidth)
	case c.WaitingPeriod < 0:
		return fmt.Errorf("config: waiting_period must not be negative, got %v", c.WaitingPeriod)
	case c.QueueSize < 0:
		return fmt.Errorf("config: queue_size must not be negative, got %v", c.QueueSize)
	case c.StallWarning < 0:
		return fmt.Errorf("config: stall_warning must not be negative, got %v", c.StallWarning)
	case c.Wayfinding.SamplingDivisor < 1:
		return fmt.Errorf("config: wayfinding.sampling_divisor must be at least 1, got %v", c.Wayfinding.SamplingDivisor)
	}
	return nil
}

func (c Config) stallAfter() time.Duration {
	return time.Duration(c.StallWarning * float64(time.Second))
}

// sampleSpeeds draws a normal and a maximum speed, the latter never below
// the former.
func (c Config) sampleSpeeds(rng *rand.Rand) (normal, maxSpeed float64) {
	normal = c.NormalSpeed.sample(rng)
	maxSpeed = math.Max(normal, c.MaxSpeed.sample(rng))
	return normal, maxSpeed
}
