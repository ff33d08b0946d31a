package messaging

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DriverNATS  = "nats"
	DriverKafka = "kafka"
)

var ErrUnknownDriver = errors.New("messaging: unknown driver")

// FactoryOptions carries the settings of every driver; only the selected one
// is read.
type FactoryOptions struct {
	Kafka KafkaConfig
	NATS  NATSConfig
}

// NewFromDriver builds the bus client named by driver. An empty name means NATS.
func NewFromDriver(driver string, opts FactoryOptions) (Messaging, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverNATS:
		return NewNATS(opts.NATS)
	case DriverKafka:
		return NewKafka(opts.Kafka)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
}
