// Package shellsplit splits a single shell-quoted argument string (as found
// in ansible_ssh_args, ssh_extra_args, and similar free-form configuration
// values) into an argv-style slice, honoring quoting the same way a POSIX
// shell would. "-o Bar=\"foo bar\"" becomes the two tokens "-o" and
// "Bar=foo bar", not three naively space-split tokens.
package shellsplit

import (
	"strings"

	"github.com/google/shlex"
)

// Split tokenizes s the way a shell would. An empty or all-whitespace string
// splits to an empty, non-nil slice.
func Split(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return []string{}, nil
	}
	return shlex.Split(s)
}

// Join renders argv back into a single shell-quoted string, e.g. for
// reading a composed command line. Its quoting is good enough to read; it
// does not promise an exact round trip for every input.
func Join(argv []string) string {
	quoted := make([]string, 0, len(argv))
	for _, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\"'\\") {
			quoted = append(quoted, "\""+strings.ReplaceAll(a, "\"", "\\\"")+"\"")
			continue
		}
		quoted = append(quoted, a)
	}
	return strings.Join(quoted, " ")
}
