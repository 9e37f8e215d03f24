package yup

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
)

// patternTimeout bounds a single match so a backtracking pattern cannot stall
// the validation loop.
const patternTimeout = 250 * time.Millisecond

// pattern is a regular expression with ECMAScript semantics.
type pattern struct {
	source string
	flags  string
	re     *regexp2.Regexp
}

func newPattern(source, flags string) (*pattern, error) {
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	for _, f := range flags {
		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'u':
			opts |= regexp2.Unicode
		case 'g', 'y', 'd':
			// match position state does not apply to a containment test
		default:
			return nil, fmt.Errorf("invalid regular expression flag %q", f)
		}
	}

	re, err := regexp2.Compile(source, opts)
	if err != nil {
		return nil, fmt.Errorf("invalid regular expression /%s/: %w", source, err)
	}
	re.MatchTimeout = patternTimeout

	return &pattern{source: source, flags: flags, re: re}, nil
}

// MatchString reports whether s contains a match. A timed out match counts as
// no match.
func (p *pattern) MatchString(s string) bool {
	ok, err := p.re.MatchString(s)
	return err == nil && ok
}

func (p *pattern) String() string {
	return "/" + p.source + "/" + p.flags
}
