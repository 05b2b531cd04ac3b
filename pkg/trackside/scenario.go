// Package trackside simulates the line side of a run: it moves a train along
// the track, reads the balises it passes and reacts to brake commands
package trackside

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/agile-defense/evc/pkg/messages"
)

// Balise is a balise placed on the line. Telegram uses the JSON field names
// of messages.Telegram.
type Balise struct {
	Position float64                `yaml:"position" validate:"gte=0"`
	Telegram map[string]interface{} `yaml:"telegram" validate:"required"`
	Fail     bool                   `yaml:"fail"`

	telegram messages.Telegram
}

// Radio is a radio message sent when the train front passes a position
type Radio struct {
	Position float64                `yaml:"position" validate:"gte=0"`
	Message  map[string]interface{} `yaml:"message" validate:"required"`

	message messages.RadioMessage
}

// Train is the simulated train
type Train struct {
	Start     float64 `yaml:"start" validate:"gte=0"`
	Speed     float64 `yaml:"speed" validate:"gte=0"`    // Cruise speed, m/s
	Accel     float64 `yaml:"accel" validate:"gt=0"`     // m/s²
	Emergency float64 `yaml:"emergency" validate:"gt=0"` // Emergency brake deceleration, m/s²
	Service   float64 `yaml:"service" validate:"gt=0"`   // Service brake deceleration, m/s²
	Simulated bool    `yaml:"simulated"`                 // Leave the speed to the onboard speed model
}

// Scenario is a scripted run
type Scenario struct {
	Name    string        `yaml:"name" validate:"required"`
	Tick    time.Duration `yaml:"tick" validate:"gt=0"`
	Stop    float64       `yaml:"stop" validate:"gt=0"` // End of the run
	Train   Train         `yaml:"train"`
	Balises []Balise      `yaml:"balises" validate:"dive"`
	Radio   []Radio       `yaml:"radio" validate:"dive"`
}

// Load reads and validates a scenario
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a scenario
func Parse(data []byte) (*Scenario, error) {
	s := &Scenario{
		Tick: 100 * time.Millisecond,
		Train: Train{
			Accel:     0.5,
			Emergency: 1.0,
			Service:   0.7,
		},
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := validator.New().Struct(s); err != nil {
		return nil, fmt.Errorf("failed to validate scenario: %w", err)
	}

	for i := range s.Balises {
		if err := convert(s.Balises[i].Telegram, &s.Balises[i].telegram); err != nil {
			return nil, fmt.Errorf("balise %d: %w", i, err)
		}
	}
	for i := range s.Radio {
		if err := convert(s.Radio[i].Message, &s.Radio[i].message); err != nil {
			return nil, fmt.Errorf("radio message %d: %w", i, err)
		}
	}

	sort.SliceStable(s.Balises, func(i, j int) bool { return s.Balises[i].Position < s.Balises[j].Position })
	sort.SliceStable(s.Radio, func(i, j int) bool { return s.Radio[i].Position < s.Radio[j].Position })
	return s, nil
}

// convert maps a YAML document onto a type decoded by its JSON field names
func convert(in map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}
	return nil
}
