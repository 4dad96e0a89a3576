package connection

import "strings"

// EscalationPolicy is the capability hook DESIGN NOTES section 9 describes:
// the predicates that decide whether a privilege-escalation wrapper has
// succeeded, is prompting for a password, or has reported an incorrect one,
// belong to the caller's escalation method (sudo, su, doas, ...), not to
// this transport. Connection only ever calls these as string predicates
// over accumulated buffers; it never interprets the method name itself
// beyond validating it against GlobalConfig.BecomeMethods.
type EscalationPolicy interface {
	// CheckBecomeSuccess reports whether buf contains the success marker
	// the escalation wrapper writes once the user's command starts.
	CheckBecomeSuccess(buf []byte) bool
	// CheckPasswordPrompt reports whether buf contains a password prompt
	// for this escalation method.
	CheckPasswordPrompt(buf []byte) bool
	// CheckIncorrectPassword reports whether buf contains the escalation
	// method's "that password was wrong" marker.
	CheckIncorrectPassword(buf []byte) bool
}

// SubstringPolicy is the simplest possible EscalationPolicy: each predicate
// is "does the buffer contain any of these substrings". It is enough to
// model sudo, su, doas and similar prompt conventions without regular
// expressions.
type SubstringPolicy struct {
	SuccessMarkers           []string
	PasswordPromptMarkers    []string
	IncorrectPasswordMarkers []string
}

func containsAny(buf []byte, markers []string) bool {
	for _, m := range markers {
		if m == "" {
			continue
		}
		if strings.Contains(string(buf), m) {
			return true
		}
	}
	return false
}

// CheckBecomeSuccess implements EscalationPolicy.
func (p *SubstringPolicy) CheckBecomeSuccess(buf []byte) bool {
	return containsAny(buf, p.SuccessMarkers)
}

// CheckPasswordPrompt implements EscalationPolicy.
func (p *SubstringPolicy) CheckPasswordPrompt(buf []byte) bool {
	return containsAny(buf, p.PasswordPromptMarkers)
}

// CheckIncorrectPassword implements EscalationPolicy.
func (p *SubstringPolicy) CheckIncorrectPassword(buf []byte) bool {
	return containsAny(buf, p.IncorrectPasswordMarkers)
}

// SudoPolicy returns the SubstringPolicy for the most common "sudo" become
// method, matching the default prompt and failure strings sudo itself uses.
func SudoPolicy(successMarker string) *SubstringPolicy {
	return &SubstringPolicy{
		SuccessMarkers:           []string{successMarker},
		PasswordPromptMarkers:    []string{"[sudo] password", "Password:"},
		IncorrectPasswordMarkers: []string{"Sorry, try again", "incorrect password"},
	}
}
