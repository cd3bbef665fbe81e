package ason

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Validator checks a candidate script before every execution attempt,
// including repairs. A nil return means accepted; a non-nil return is
// the short human error fed back to the script agent.
type Validator interface {
	Validate(script string) error
}

// defaultForbiddenKeywords are denied in scripts regardless of runner:
// module loading, process spawning, dynamic evaluation and filesystem
// escape hatches.
var defaultForbiddenKeywords = []string{
	"import ",
	"__import__",
	"subprocess",
	"os.system",
	"eval(",
	"exec(",
	"compile(",
	"open(",
	"globals(",
	"breakpoint(",
}

// KeywordValidator rejects scripts containing any of a configured set
// of forbidden substrings. Matching is case-insensitive over the
// NFKC-normalized script, so fullwidth and ligature obfuscations of a
// keyword still match.
type KeywordValidator struct {
	keywords []string
}

// NewKeywordValidator creates a validator for the given keywords; with
// none given, the default set applies.
func NewKeywordValidator(keywords ...string) *KeywordValidator {
	if len(keywords) == 0 {
		keywords = defaultForbiddenKeywords
	}
	lower := make([]string, len(keywords))
	for i, k := range keywords {
		lower[i] = strings.ToLower(k)
	}
	return &KeywordValidator{keywords: lower}
}

// Validate implements Validator.
func (v *KeywordValidator) Validate(script string) error {
	normalized := strings.ToLower(norm.NFKC.String(script))
	for _, kw := range v.keywords {
		if strings.Contains(normalized, kw) {
			return &ErrValidation{Message: "script contains forbidden keyword " + strings.TrimSpace(kw)}
		}
	}
	return nil
}

var _ Validator = (*KeywordValidator)(nil)
