// Package config exposes typed access to the service configuration.
package config

import (
	"io"
	"time"
)

// Config is the read-only configuration used by the application wiring.
// Missing or malformed keys yield the zero value.
type Config interface {
	io.Closer

	GetBool(key string) bool
	GetString(key string) string
	GetInt(key string) int
	GetInt32(key string) int32
	GetUint(key string) uint
	GetFloat64(key string) float64

	// Durations are stored as integers in the unit named by the getter.
	GetMillisecond(key string) time.Duration
	GetSecond(key string) time.Duration
	GetMinute(key string) time.Duration

	// GetArray splits a "<a>,<b>,..." value and drops empty elements.
	GetArray(key string) []string

	// GetMap parses a "<k1>:<v1>,<k2>:<v2>" value.
	GetMap(key string) map[string]string
}
