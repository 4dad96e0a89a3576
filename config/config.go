// Package config holds the connection-wide, read-only configuration and the
// per-task connection parameters consumed by the connection package. None of
// these types are mutable singletons: callers build a GlobalConfig once (by
// hand, or via Load from the environment) and pass it into every
// connection.Connection they construct, rather than reaching for package
// globals.
package config

import (
	"os"
	"strconv"
)

// Default values: lower case, package-private, used only to seed the
// exported struct.
const (
	defaultSSHArgs       = "-o ControlMaster=auto -o ControlPersist=60s"
	defaultControlPath   = "%(directory)s/%%h-%%r"
	defaultSSHRetries    = 0
	defaultScpIfSSH      = false
	defaultSFTPBatchMode = true
)

// defaultBecomeMethods is the set of privilege-escalation methods this transport
// knows how to detect a prompt for. "runas" (Windows) is intentionally
// excluded: this transport only ever shells out to a POSIX ssh client.
var defaultBecomeMethods = []string{"sudo", "su", "pbrun", "pfexec", "doas", "dzdo", "ksu", "pmrun"}

// GlobalConfig is process-wide configuration, consulted at connect time. It
// is immutable after construction: nothing in the connection package ever
// mutates a *GlobalConfig it was handed.
type GlobalConfig struct {
	// SSHArgs is the base ssh args used if no inventory override exists.
	SSHArgs string
	// ControlPath is a format string containing a "{directory}" (or the
	// Python-style "%(directory)s") placeholder. In the Python-style form,
	// "%%" is an escaped "%", so "%%h" reaches ssh as its own "%h" token.
	ControlPath string
	// HostKeyChecking, if false, causes StrictHostKeyChecking=no to be
	// appended to every composed argv.
	HostKeyChecking bool
	// SSHRetries is the retry budget handed to the RetryController. The
	// controller itself always tries once more than this value.
	SSHRetries int
	// ScpIfSSH selects scp over sftp for file transfer when true.
	ScpIfSSH bool
	// SFTPBatchMode enables "sftp -b -" for fetch_file so that failures
	// produce a non-zero exit code instead of an interactive retry.
	SFTPBatchMode bool
	// BecomeMethods is the allow-list of privilege-escalation methods
	// this transport will spawn a handshake for. A PlayContext naming a
	// BecomeMethod outside of this list is a ConfigurationError.
	BecomeMethods []string
	// SCPExtraArgs is appended to an scp invocation unconditionally. The
	// default forces the legacy SCP wire protocol ("-O") since modern
	// OpenSSH scp defaults to SFTP-under-the-hood and some minimal
	// remote sshd configurations only speak the legacy protocol.
	SCPExtraArgs []string
}

// Default returns the GlobalConfig that matches a stock ssh/sshd install.
func Default() *GlobalConfig {
	return &GlobalConfig{
		SSHArgs:         defaultSSHArgs,
		ControlPath:     defaultControlPath,
		HostKeyChecking: true,
		SSHRetries:      defaultSSHRetries,
		ScpIfSSH:        defaultScpIfSSH,
		SFTPBatchMode:   defaultSFTPBatchMode,
		BecomeMethods:   append([]string{}, defaultBecomeMethods...),
		SCPExtraArgs:    []string{"-O"},
	}
}

// Load builds a GlobalConfig from the process environment, falling back to
// Default() for anything unset. Variable names are namespaced under
// REMOTESSH_.
func Load() *GlobalConfig {
	cfg := Default()
	if v := os.Getenv("REMOTESSH_SSH_ARGS"); v != "" {
		cfg.SSHArgs = v
	}
	if v := os.Getenv("REMOTESSH_CONTROL_PATH"); v != "" {
		cfg.ControlPath = v
	}
	if v := os.Getenv("REMOTESSH_HOST_KEY_CHECKING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.HostKeyChecking = b
		}
	}
	if v := os.Getenv("REMOTESSH_SSH_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.SSHRetries = n
		}
	}
	if v := os.Getenv("REMOTESSH_SCP_IF_SSH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ScpIfSSH = b
		}
	}
	if v := os.Getenv("REMOTESSH_SFTP_BATCH_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SFTPBatchMode = b
		}
	}
	return cfg
}

// HostVars are the per-host inventory overrides read once at connect time.
// Any key not modeled explicitly is carried in Vars so that callers can pass
// through orchestration-layer-specific host variables without this package
// needing to know about them.
type HostVars struct {
	// SSHArgs overrides GlobalConfig.SSHArgs for this host, when set.
	SSHArgs string
	// SSHExtraArgs overrides PlayContext.SSHExtraArgs for this host, when
	// the PlayContext itself doesn't specify one.
	SSHExtraArgs string
	// Vars holds arbitrary additional inventory variables, e.g. ones an
	// upstream orchestration layer understands but this transport does
	// not need to interpret directly.
	Vars map[string]interface{}
}

// PlayContext is the caller-supplied, read-only record of per-task
// connection parameters. The connection package never mutates one of these.
type PlayContext struct {
	RemoteAddr     string
	RemoteUser     string
	Port           int // 0 means "use the default"
	Password       string
	PrivateKeyFile string
	Timeout        int // seconds: ssh's ConnectTimeout and the EscalationHandshake timeout
	Verbosity      int
	SSHExtraArgs   string
	Become         bool
	BecomeMethod   string
	BecomePass     string
	// Prompt is either a literal probe substring or left empty. A
	// non-empty Prompt is what triggers EscalationHandshake; the actual
	// detection predicates live in the EscalationPolicy the caller
	// sets as connection.Connection's Policy, not here.
	Prompt string
}
