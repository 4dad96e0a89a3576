package connection

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/opsmgr/remotessh/config"
	"github.com/opsmgr/remotessh/internal/shellsplit"
)

// argBuilder composes the ssh/scp/sftp argv fragments in a fixed precedence
// order: host override beats global default beats hardcoded fallback, with
// timeouts, auth lockdown, and extra args layered on afterward. It is used
// once per Connection and then frozen; see Connection.connected.
type argBuilder struct {
	global   *config.GlobalConfig
	host     config.HostVars
	play     *config.PlayContext
	homeDir  string // overridable in tests, defaults to os.UserHomeDir()
}

// build returns the composed common_args: base args, then an inferred
// ControlPath, host-key checking, port, identity file, auth lockdown when no
// password is set, remote user, connect timeout, and finally extra args.
func (b *argBuilder) build() ([]string, error) {
	var args []string

	base, err := b.baseArgs()
	if err != nil {
		return nil, err
	}
	args = append(args, base...)

	cpArgs, err := b.controlPathArgs(base)
	if err != nil {
		return nil, err
	}
	args = append(args, cpArgs...)

	if !b.global.HostKeyChecking {
		args = append(args, "-o", "StrictHostKeyChecking=no")
	}

	if b.play.Port != 0 {
		args = append(args, "-o", fmt.Sprintf("Port=%d", b.play.Port))
	}

	if b.play.PrivateKeyFile != "" {
		args = append(args, "-o", fmt.Sprintf("IdentityFile=%q", expandUser(b.play.PrivateKeyFile, b.homeDir)))
	}

	if b.play.Password == "" {
		args = append(args,
			"-o", "KbdInteractiveAuthentication=no",
			"-o", "PreferredAuthentications=gssapi-with-mic,gssapi-keyex,hostbased,publickey",
			"-o", "PasswordAuthentication=no",
		)
	}

	if b.play.RemoteUser != "" && b.play.RemoteUser != currentUsername() {
		args = append(args, "-o", fmt.Sprintf("User=%s", b.play.RemoteUser))
	}

	args = append(args, "-o", fmt.Sprintf("ConnectTimeout=%d", connectTimeout(b.play.Timeout)))

	extra := firstNonEmpty(b.play.SSHExtraArgs, b.host.SSHExtraArgs)
	if extra != "" {
		tokens, err := shellsplit.Split(extra)
		if err != nil {
			return nil, wrapConfigurationError(err, "error splitting ssh_extra_args %q", extra)
		}
		args = append(args, tokens...)
	}

	return args, nil
}

// baseArgs implements precedence step 1: host override, then global
// default, then the hardcoded fallback.
func (b *argBuilder) baseArgs() ([]string, error) {
	raw := firstNonEmpty(b.host.SSHArgs, b.global.SSHArgs, "-o ControlMaster=auto -o ControlPersist=60s")
	tokens, err := shellsplit.Split(raw)
	if err != nil {
		return nil, wrapConfigurationError(err, "error splitting base ssh args %q", raw)
	}
	return tokens, nil
}

// controlPathArgs implements precedence step 2: if ControlPersist is
// present in the base args and ControlPath is not, create the control
// socket directory and append an explicit ControlPath option.
func (b *argBuilder) controlPathArgs(base []string) ([]string, error) {
	if !containsOptionSubstring(base, "ControlPersist") {
		return nil, nil
	}
	if containsOptionSubstring(base, "ControlPath") {
		return nil, nil // caller already set one explicitly
	}

	dir, err := ensureControlPathDir(b.homeDir)
	if err != nil {
		return nil, NewConfigurationError("cannot prepare ControlPath directory: %v", err)
	}

	tmpl := b.global.ControlPath
	tmpl = strings.ReplaceAll(tmpl, "{directory}", dir)
	if strings.Contains(tmpl, "%(directory)s") {
		// Python %-format template: "%%" is an escaped "%".
		tmpl = strings.ReplaceAll(tmpl, "%%", "%")
		tmpl = strings.ReplaceAll(tmpl, "%(directory)s", dir)
	}

	return []string{"-o", fmt.Sprintf("ControlPath=%s", tmpl)}, nil
}

// ensureControlPathDir creates $HOME/.remotessh/cp with mode 0700, failing
// with a ConfigurationError if it cannot be made writable, rather than
// silently degrading to a connection without multiplexing.
func ensureControlPathDir(homeDir string) (string, error) {
	if homeDir == "" {
		var err error
		homeDir, err = os.UserHomeDir()
		if err != nil {
			return "", err
		}
	}
	dir := filepath.Join(homeDir, ".remotessh", "cp")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if info.Mode().Perm()&0700 != 0700 {
		if err := os.Chmod(dir, 0700); err != nil {
			return "", fmt.Errorf("%s exists but is not writable: %w", dir, err)
		}
	}
	return dir, nil
}

func containsOptionSubstring(args []string, substr string) bool {
	for _, a := range args {
		if strings.Contains(a, substr) {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func expandUser(path, homeDir string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	if homeDir == "" {
		homeDir, _ = os.UserHomeDir()
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~/"))
}

func currentUsername() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}

func connectTimeout(seconds int) int {
	if seconds <= 0 {
		return 10 // default, matches common ssh client defaults
	}
	return seconds
}
