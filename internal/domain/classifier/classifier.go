// Package classifier labels payment recipients as internal (state agencies
// and internal service providers) or external (private vendors, nonprofits,
// localities). The split drives the external-only decoder view.
package classifier

import "strings"

// EntityType is a recipient classification.
type EntityType string

const (
	Internal EntityType = "internal"
	External EntityType = "external"
)

// Classifier decides what kind of entity a vendor name refers to.
type Classifier interface {
	Classify(vendorName string) EntityType
}

// defaultInternalPatterns mark vendors that are really other arms of state
// government. Matched case-insensitively as substrings.
var defaultInternalPatterns = []string{
	"department of",
	"dept of",
	"department for",
	"dept for",
	"division of",
	"office of",
	"board of",
	"commission on",
	"council on",
	"secretary of",
	"secretariat",
	"university of",
	"community college",
	"state university",
	"commonwealth of",
	"treasury",
	"state treasurer",
	"retirement system",
	"employment commission",
	"port authority",
	"information technologies agency",
}

// PatternClassifier classifies by substring patterns against the lowercased
// vendor name. The zero value classifies everything as external.
type PatternClassifier struct {
	patterns []string
}

// NewPatternClassifier builds a classifier over the given internal-vendor
// patterns, or the default pattern set when none are supplied.
func NewPatternClassifier(patterns []string) *PatternClassifier {
	if len(patterns) == 0 {
		patterns = defaultInternalPatterns
	}
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return &PatternClassifier{patterns: lowered}
}

// Classify returns Internal when any pattern occurs in the vendor name,
// External otherwise. Empty names are external.
func (c *PatternClassifier) Classify(vendorName string) EntityType {
	if vendorName == "" {
		return External
	}
	lowered := strings.ToLower(vendorName)
	for _, p := range c.patterns {
		if strings.Contains(lowered, p) {
			return Internal
		}
	}
	return External
}
