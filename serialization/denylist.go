package serialization

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultSensitiveNames are the parameter and property names redacted when
// no other configuration is given.
var DefaultSensitiveNames = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"authorization", "credential", "private_key",
}

// Denylist decides which parameter or property names are sensitive.
//
// A pattern written as /expr/ is a regular expression; any other pattern
// matches as a substring. Matching is case-insensitive.
type Denylist struct {
	substrings []string
	regexps    []*regexp.Regexp
}

// NewDenylist compiles the given patterns.
func NewDenylist(patterns []string) (*Denylist, error) {
	d := &Denylist{}

	for i, p := range patterns {
		if p == "" {
			return nil, fmt.Errorf("redaction pattern %d is empty", i)
		}

		if len(p) >= 2 && strings.HasPrefix(p, "/") && strings.HasSuffix(p, "/") {
			re, err := regexp.Compile("(?i)" + p[1:len(p)-1])
			if err != nil {
				return nil, fmt.Errorf("redaction pattern %d %q: %w", i, p, err)
			}

			d.regexps = append(d.regexps, re)

			continue
		}

		d.substrings = append(d.substrings, strings.ToLower(p))
	}

	return d, nil
}

// NewDefaultDenylist creates a Denylist of DefaultSensitiveNames.
func NewDefaultDenylist() *Denylist {
	d, err := NewDenylist(DefaultSensitiveNames)
	if err != nil {
		panic(err)
	}

	return d
}

// Matches reports whether name is sensitive.
func (d *Denylist) Matches(name string) bool {
	if d == nil || name == "" {
		return false
	}

	lower := strings.ToLower(name)
	for _, s := range d.substrings {
		if strings.Contains(lower, s) {
			return true
		}
	}

	for _, re := range d.regexps {
		if re.MatchString(name) {
			return true
		}
	}

	return false
}
