package entity

import "strings"

// Category classifies a notification for preference resolution.
type Category string

const (
	CategoryAssignment   Category = "ASSIGNMENT"
	CategoryDeadline     Category = "DEADLINE"
	CategoryEscalation   Category = "ESCALATION"
	CategoryApproval     Category = "APPROVAL"
	CategoryMention      Category = "MENTION"
	CategoryStatusUpdate Category = "STATUS_UPDATE"
	CategoryComment      Category = "COMMENT"
	CategoryCompletion   Category = "COMPLETION"
	CategorySystem       Category = "SYSTEM"

	// CategoryDigest only types compiled digest notifications; it has no preference entry.
	CategoryDigest Category = "DIGEST"
)

var preferenceCategories = []Category{
	CategoryAssignment,
	CategoryDeadline,
	CategoryEscalation,
	CategoryApproval,
	CategoryMention,
	CategoryStatusUpdate,
	CategoryComment,
	CategoryCompletion,
	CategorySystem,
}

// PreferenceCategories lists every category a user or organization can configure.
func PreferenceCategories() []Category {
	return append([]Category(nil), preferenceCategories...)
}

// CategoryFromString parses a category name, case-insensitively.
func CategoryFromString(raw string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(raw)))
	if c.IsPreference() || c == CategoryDigest {
		return c, true
	}
	return "", false
}

func (c Category) String() string {
	return string(c)
}

// IsPreference reports whether c is a configurable category.
func (c Category) IsPreference() bool {
	for _, pc := range preferenceCategories {
		if pc == c {
			return true
		}
	}
	return false
}

// IsUrgent reports whether c defaults to email and is eligible for OOO redirection.
func (c Category) IsUrgent() bool {
	switch c {
	case CategoryAssignment, CategoryDeadline, CategoryEscalation, CategoryApproval, CategoryMention:
		return true
	default:
		return false
	}
}

// IsDigestEligible reports whether email for c may be batched into a digest.
func (c Category) IsDigestEligible() bool {
	switch c {
	case CategoryStatusUpdate, CategoryComment, CategoryCompletion:
		return true
	default:
		return false
	}
}

// DigestEligibleCategories lists the categories that feed the digest.
func DigestEligibleCategories() []Category {
	return []Category{CategoryStatusUpdate, CategoryComment, CategoryCompletion}
}
