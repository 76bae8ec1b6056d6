package classmap

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrInvalidPattern is returned for malformed glob patterns.
var ErrInvalidPattern = errors.New("classmap: invalid pattern")

// A Selector picks functions by glob patterns on their package path (segments
// joined by "/"), their class path (segments joined by "::") and their name.
// Empty patterns match everything. Patterns support "*", "?" and "[...]".
type Selector struct {
	Package string
	Class   string
	Method  string

	pkg, class, method *regexp.Regexp
}

// CompileSelector validates and compiles the patterns of a selector.
func CompileSelector(pkg, class, method string) (Selector, error) {
	sel := Selector{Package: pkg, Class: class, Method: method}

	var err error

	if sel.pkg, err = compileGlob(pkg); err != nil {
		return Selector{}, fmt.Errorf("package %q: %w", pkg, err)
	}

	if sel.class, err = compileGlob(class); err != nil {
		return Selector{}, fmt.Errorf("class %q: %w", class, err)
	}

	if sel.method, err = compileGlob(method); err != nil {
		return Selector{}, fmt.Errorf("method %q: %w", method, err)
	}

	return sel, nil
}

// MustCompileSelector is like CompileSelector but panics on malformed
// patterns.
func MustCompileSelector(pkg, class, method string) Selector {
	sel, err := CompileSelector(pkg, class, method)
	if err != nil {
		panic(err)
	}

	return sel
}

func (s Selector) matches(packages, classes []string, method string) bool {
	return matchGlob(s.pkg, strings.Join(packages, "/")) &&
		matchGlob(s.class, strings.Join(classes, "::")) &&
		matchGlob(s.method, method)
}

func matchGlob(re *regexp.Regexp, s string) bool {
	return re == nil || re.MatchString(s)
}

func compileGlob(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}

	var sb strings.Builder

	sb.WriteString("^")

	for i := 0; i < len(pattern); {
		r, size := utf8.DecodeRuneInString(pattern[i:])

		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		case '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end <= 0 {
				return nil, ErrInvalidPattern
			}

			class := pattern[i+1 : i+1+end]
			if class[0] == '!' {
				class = "^" + class[1:]
			}

			sb.WriteString("[" + strings.ReplaceAll(class, `\`, `\\`) + "]")
			i += end + 2

			continue
		case ']':
			return nil, ErrInvalidPattern
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}

		i += size
	}

	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}

	return re, nil
}
