// Package agent provides the process shell shared by the onboard, trackside
// and recorder binaries
package agent

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Type identifies the kind of process
type Type string

const (
	TypeEVC       Type = "evc"
	TypeTrackside Type = "trackside"
	TypeRecorder  Type = "recorder"
)

// HealthStatus represents process health
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// Process is implemented by every binary
type Process interface {
	// Identity
	ID() string
	Type() Type

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() HealthStatus

	// Metrics
	Metrics() *prometheus.Registry
}

// Config holds configuration for a process
type Config struct {
	ID       string
	Type     Type
	NATSUrl  string
	DBUrl    string
	OTELUrl  string
	LogLevel string
	Secret   []byte
}
