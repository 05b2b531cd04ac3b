// Package config loads the onboard configuration: train data, braking model,
// fixed and national values, and the service endpoints of the binaries
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/agile-defense/evc/pkg/onboard"
	"github.com/agile-defense/evc/pkg/supervision"
	"github.com/agile-defense/evc/pkg/targets"
)

// ErrInvalidStart is returned for an unknown start mode or level
var ErrInvalidStart = errors.New("invalid start state")

// Braking is the braking capability of the train
type Braking struct {
	Emergency []targets.Band `yaml:"emergency" validate:"required,min=1,dive"`
	Service   []targets.Band `yaml:"service" validate:"required,min=1,dive"`
}

// Odometry configures the confidence interval
type Odometry struct {
	AccuracyFixed float64 `yaml:"accuracy_fixed" validate:"gte=0"`
	AccuracyRatio float64 `yaml:"accuracy_ratio" validate:"gte=0,lt=1"`
}

// Start is the state at start of mission
type Start struct {
	Mode    string `yaml:"mode" validate:"required"`
	Level   string `yaml:"level" validate:"required"`
	Version int    `yaml:"version" validate:"gte=16"`
}

// Services holds the endpoints used by the binaries. Environment variables
// override them.
type Services struct {
	NATSUrl  string `yaml:"nats_url" validate:"required"`
	DBUrl    string `yaml:"db_url"`
	OTELUrl  string `yaml:"otel_url"`
	HTTPAddr string `yaml:"http_addr" validate:"required"`
	Secret   string `yaml:"secret"`
}

// Config is the onboard configuration
type Config struct {
	ID          string                 `yaml:"id" validate:"required"`
	LogLevel    string                 `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Cycle       time.Duration          `yaml:"cycle" validate:"gt=0"`
	CoversPath  string                 `yaml:"covers_path"`
	Train       targets.Params         `yaml:"train"`
	Braking     Braking                `yaml:"braking" validate:"required"`
	Odometry    Odometry               `yaml:"odometry"`
	Start       Start                  `yaml:"start"`
	National    onboard.NationalValues `yaml:"national"`
	Supervision supervision.Options    `yaml:"supervision"`
	SpeedModel  supervision.SpeedModel `yaml:"speed_model"`
	Services    Services               `yaml:"services"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		ID:         "evc-1",
		LogLevel:   "info",
		Cycle:      100 * time.Millisecond,
		CoversPath: "vbcs.dat",
		Train:      targets.DefaultParams(),
		Braking: Braking{
			Emergency: []targets.Band{{UpTo: 30, Deceleration: 0.9}, {UpTo: 100, Deceleration: 0.75}},
			Service:   []targets.Band{{UpTo: 30, Deceleration: 0.7}, {UpTo: 100, Deceleration: 0.6}},
		},
		Odometry:   Odometry{AccuracyFixed: 5, AccuracyRatio: 0.05},
		Start:      Start{Mode: "SB", Level: "N1", Version: 33},
		National:   onboard.NationalValues{ReleaseEmergencyBrakeEarly: true},
		SpeedModel: supervision.DefaultSpeedModel(),
		Services: Services{
			NATSUrl:  "nats://localhost:4222",
			HTTPAddr: ":8080",
		},
	}
}

// Load reads and validates a YAML configuration. Values missing from the file
// keep their defaults. An empty path loads the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.overlayEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and the start state
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("failed to validate config: %w", err)
	}
	if _, ok := onboard.ParseMode(c.Start.Mode); !ok {
		return fmt.Errorf("mode %q: %w", c.Start.Mode, ErrInvalidStart)
	}
	if _, ok := onboard.ParseLevel(c.Start.Level); !ok {
		return fmt.Errorf("level %q: %w", c.Start.Level, ErrInvalidStart)
	}
	return nil
}

func (c *Config) overlayEnv() {
	c.ID = getEnv("EVC_ID", c.ID)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Services.NATSUrl = getEnv("NATS_URL", c.Services.NATSUrl)
	c.Services.DBUrl = getEnv("DATABASE_URL", c.Services.DBUrl)
	c.Services.OTELUrl = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Services.OTELUrl)
	c.Services.HTTPAddr = getEnv("HTTP_ADDR", c.Services.HTTPAddr)
	c.Services.Secret = getEnv("EVC_SECRET", c.Services.Secret)
}

// Context creates the onboard context at start of mission
func (c Config) Context(covers onboard.Covers, logger zerolog.Logger) *onboard.Context {
	mode, _ := onboard.ParseMode(c.Start.Mode)
	level, _ := onboard.ParseLevel(c.Start.Level)
	return onboard.NewContext(onboard.Options{
		Mode:           mode,
		Level:          level,
		Version:        c.Start.Version,
		AntennaOffset:  c.Train.AntennaOffset,
		MaxSpeed:       c.Train.MaxSpeed,
		AccuracyFixed:  c.Odometry.AccuracyFixed,
		AccuracyRatio:  c.Odometry.AccuracyRatio,
		National:       c.National,
		CabActive:      true,
		TrainDataValid: true,
		Covers:         covers,
	}, logger)
}

// Model creates the braking model
func (c Config) Model() (*targets.Model, error) {
	emergency, err := targets.NewDeceleration(c.Braking.Emergency)
	if err != nil {
		return nil, fmt.Errorf("failed to build emergency deceleration: %w", err)
	}
	service, err := targets.NewDeceleration(c.Braking.Service)
	if err != nil {
		return nil, fmt.Errorf("failed to build service deceleration: %w", err)
	}
	return targets.NewModel(c.Train, emergency, service), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
