// Package stage maps stage names to deployment environments and
// encryption keys. Stage table keys are either literal stage names or
// regular-expression patterns wrapped in slashes (e.g. "/dev-.*/");
// literal matches always win over patterns.
package stage

import (
	"fmt"
	"regexp"
	"strings"
)

// Info is the environment/key assignment for one stage pattern.
type Info struct {
	Environment string
	Key         string
}

// Entry is one stage table row. Order matters: pattern entries are tried
// in document order after literal matches are exhausted.
type Entry struct {
	Pattern string
	Info    Info
}

// Table is an ordered stage table loaded from a document's stages section.
type Table struct {
	entries []Entry
}

// NewTable builds a table from ordered entries.
func NewTable(entries ...Entry) Table {
	return Table{entries: entries}
}

// Entries returns the table rows in document order.
func (t Table) Entries() []Entry {
	return t.entries
}

// UnknownStageError reports a stage name that no table entry matches.
type UnknownStageError struct {
	Stage string
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("no match for stage %q", e.Stage)
}

// Resolve finds the stage info for a stage name. A literal entry equal to
// the name wins; otherwise pattern entries are tried in order with a
// full-string regex match.
func (t Table) Resolve(name string) (Info, error) {
	for _, e := range t.entries {
		if e.Pattern == name {
			return e.Info, nil
		}
	}
	for _, e := range t.entries {
		if ok, err := patternMatches(e.Pattern, name); err != nil {
			return Info{}, err
		} else if ok {
			return e.Info, nil
		}
	}
	return Info{}, &UnknownStageError{Stage: name}
}

// Environment returns the environment configured for a stage.
func (t Table) Environment(name string) (string, error) {
	info, err := t.Resolve(name)
	if err != nil {
		return "", err
	}
	if info.Environment == "" {
		return "", fmt.Errorf("no environment defined for stage %q", name)
	}
	return info.Environment, nil
}

// KMSKey returns the encryption key configured for a stage. Bare key
// names are qualified with the "alias/" prefix; aliases and ARNs pass
// through unchanged.
func (t Table) KMSKey(name string) (string, error) {
	info, err := t.Resolve(name)
	if err != nil {
		return "", err
	}
	if info.Key == "" {
		return "", fmt.Errorf("no key defined for stage %q", name)
	}
	if strings.HasPrefix(info.Key, "alias/") || strings.HasPrefix(info.Key, "arn:") {
		return info.Key, nil
	}
	return "alias/" + info.Key, nil
}

// Matches reports whether a stage name matches a table or branch pattern:
// exact equality for literals, full-string regex match for /…/-wrapped
// patterns.
func Matches(pattern, name string) bool {
	if pattern == name {
		return true
	}
	ok, err := patternMatches(pattern, name)
	return err == nil && ok
}

// IsPattern reports whether a key is a /…/-wrapped regex pattern.
func IsPattern(key string) bool {
	return len(key) >= 2 && strings.HasPrefix(key, "/") && strings.HasSuffix(key, "/")
}

// patternMatches applies a /…/-wrapped pattern to a name as a full-string
// match. Non-pattern keys never match here.
func patternMatches(pattern, name string) (bool, error) {
	if !IsPattern(pattern) {
		return false, nil
	}
	inner := pattern[1 : len(pattern)-1]
	re, err := regexp.Compile("^(?:" + inner + ")$")
	if err != nil {
		return false, fmt.Errorf("invalid stage pattern %q: %w", pattern, err)
	}
	return re.MatchString(name), nil
}
