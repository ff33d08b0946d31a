// Package validator checks usecase inputs declared with `validate` tags and
// reports failures keyed by the JSON field name, e.g. "quiet_hours_start".
package validator

type Validator interface {
	Validate(data any) error
}
