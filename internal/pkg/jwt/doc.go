// Package jwt verifies the bearer tokens issued by the platform's identity
// service and carries the resulting tenant-scoped claims through a request
// context. Generate exists for tooling and tests.
package jwt
