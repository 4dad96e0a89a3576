// Package addhost implements a trivial host-registration action: it parses
// a "host[:port]" string and a bag of arbitrary host variables into an
// inventory-mutation record. It does not touch any inventory itself; the
// caller is responsible for applying the returned Result.
package addhost

import (
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
)

// Params is the action's input: a name/hostname, an optional groupname
// (singular) or groups (plural) spelling, and any number of arbitrary host
// variables. Keys not recognized as name/hostname/groupname/groups are
// treated as host vars.
type Params struct {
	Name      string
	Hostname  string
	GroupName string
	Groups    []string
	Vars      map[string]interface{}
	CheckMode bool
}

// AddHost is the inventory-mutation record the action returns.
type AddHost struct {
	HostName string
	Groups   []string
	HostVars map[string]interface{}

	// RequestID correlates this invocation across logs when many
	// add_host calls run concurrently during an inventory build; it has
	// no meaning to the inventory itself.
	RequestID string
}

// Result is the action's return value.
type Result struct {
	Changed bool
	Skipped bool
	AddHost *AddHost
}

// ErrInvalidHostname is returned when the chosen host string (Params.Name,
// or Params.Hostname when Name is empty) is empty or does not parse as a
// usable host[:port] string. An invalid Name does not fall back to Hostname.
type ErrInvalidHostname struct {
	Raw string
}

func (e *ErrInvalidHostname) Error() string {
	return fmt.Sprintf("invalid hostname: %q", e.Raw)
}

// Run executes the action. Check mode is unsupported and returns a
// skipped Result rather than an error.
func Run(p Params) (*Result, error) {
	if p.CheckMode {
		return &Result{Skipped: true}, nil
	}

	raw := p.Name
	if raw == "" {
		raw = p.Hostname
	}
	if raw == "" {
		return nil, &ErrInvalidHostname{Raw: raw}
	}

	hostName, port, err := splitHostPort(raw)
	if err != nil {
		return nil, &ErrInvalidHostname{Raw: raw}
	}

	hostVars := map[string]interface{}{}
	for k, v := range p.Vars {
		hostVars[k] = v
	}
	if port != 0 {
		hostVars["ansible_ssh_port"] = port
	}

	groups := p.Groups
	if p.GroupName != "" {
		groups = append(append([]string{}, groups...), p.GroupName)
	}

	return &Result{
		Changed: true,
		AddHost: &AddHost{
			HostName:  hostName,
			Groups:    groups,
			HostVars:  hostVars,
			RequestID: uuid.NewString(),
		},
	}, nil
}

// splitHostPort splits "host:port" into its parts, tolerating a bare host
// with no port (returning port 0) and rejecting empty hosts or malformed
// port suffixes. net.SplitHostPort is used for its IPv6 "[::1]:2222"
// handling; the bare-host fallback covers the common "web1.example.com"
// case (no port) that it would otherwise reject outright.
func splitHostPort(raw string) (string, int, error) {
	if raw == "" {
		return "", 0, fmt.Errorf("empty hostname")
	}

	host, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		// No ":port" suffix at all (SplitHostPort requires one);
		// treat the whole string as a bare host.
		return raw, 0, nil
	}
	if host == "" {
		return "", 0, fmt.Errorf("empty hostname in %q", raw)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in %q", raw)
	}
	return host, port, nil
}
