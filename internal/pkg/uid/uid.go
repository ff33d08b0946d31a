// Package uid provides identifier generators used across the service.
package uid

// NumberID generates sortable numeric identifiers (primary keys).
type NumberID interface {
	Generate() int64
}

// StringID generates opaque string identifiers (correlation ids, job ids).
type StringID interface {
	Generate() string
}
