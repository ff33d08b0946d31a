package entity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownEntityKind is returned for a kind outside the supported set.
var ErrUnknownEntityKind = errors.New("unknown entity kind")

// EntityKind is the closed set of domain objects a notification can link to.
type EntityKind string

const (
	EntityKindCase            EntityKind = "CASE"
	EntityKindInvestigation   EntityKind = "INVESTIGATION"
	EntityKindRIU             EntityKind = "RIU"
	EntityKindRemediationPlan EntityKind = "REMEDIATION_PLAN"
)

type entityKindInfo struct {
	label string
	path  string
}

var entityKinds = map[EntityKind]entityKindInfo{
	EntityKindCase:            {label: "Case", path: "cases"},
	EntityKindInvestigation:   {label: "Investigation", path: "investigations"},
	EntityKindRIU:             {label: "RIU", path: "rius"},
	EntityKindRemediationPlan: {label: "Remediation Plan", path: "remediation-plans"},
}

// ParseEntityKind rejects anything outside the known kinds.
func ParseEntityKind(raw string) (EntityKind, error) {
	k := EntityKind(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := entityKinds[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEntityKind, raw)
	}
	return k, nil
}

func (k EntityKind) String() string { return string(k) }

// Label is the human name, e.g. "Case".
func (k EntityKind) Label() string { return entityKinds[k].label }

// PathSegment is the deep-link path segment, e.g. "cases".
func (k EntityKind) PathSegment() string { return entityKinds[k].path }

// EntityRef points a notification at a domain object.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   int64      `json:"id,string"`
}

// FallbackReference is used when the display reference cannot be resolved.
func (r EntityRef) FallbackReference() string {
	return fmt.Sprintf("%s #%d", r.Kind.Label(), r.ID)
}

// DeepLink builds the web URL for the entity under baseURL.
func (r EntityRef) DeepLink(baseURL string) string {
	return fmt.Sprintf("%s/%s/%d", strings.TrimRight(baseURL, "/"), r.Kind.PathSegment(), r.ID)
}

// NewEntityRef returns nil when kind is empty and an error when kind is unknown.
func NewEntityRef(kind string, id int64) (*EntityRef, error) {
	if strings.TrimSpace(kind) == "" {
		return nil, nil
	}
	k, err := ParseEntityKind(kind)
	if err != nil {
		return nil, err
	}
	return &EntityRef{Kind: k, ID: id}, nil
}
