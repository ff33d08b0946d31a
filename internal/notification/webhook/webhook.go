// Package webhook turns provider delivery callbacks into entity.WebhookEvent values.
package webhook

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/shandysiswandi/courier/internal/notification/entity"
)

// ErrUnknownProvider is returned for a provider without a normalizer.
var ErrUnknownProvider = errors.New("webhook: unknown provider")

// tagOrganizationID is the tag every outbound message carries.
const tagOrganizationID = "organization_id"

// Normalizer parses one provider's callback body. A single malformed event
// inside a batch is skipped; only an unreadable body is an error.
type Normalizer interface {
	Provider() string
	Normalize(body []byte) ([]entity.WebhookEvent, error)
}

type Registry struct {
	normalizers map[string]Normalizer
}

func NewRegistry(ns ...Normalizer) *Registry {
	r := &Registry{normalizers: make(map[string]Normalizer, len(ns))}
	for _, n := range ns {
		r.normalizers[n.Provider()] = n
	}
	return r
}

func (r *Registry) Get(provider string) (Normalizer, error) {
	n, ok := r.normalizers[strings.ToLower(provider)]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return n, nil
}

// flexID reads an id sent either as a JSON number or a JSON string.
type flexID int64

func (f *flexID) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	if raw == "" || raw == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return err
	}
	*f = flexID(v)
	return nil
}

func parseID(raw string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func decodeArray(body []byte) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, err
	}
	return items, nil
}
