// Package messaging provides a broker-agnostic API for publishing and
// consuming messages over NATS or Kafka.
//
// Business code depends only on Publisher/Consumer; the driver is picked at
// boot from configuration.
package messaging
