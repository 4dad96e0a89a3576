// Package connection implements the SSH remote-execution transport: it
// composes ssh/scp/sftp argument vectors, spawns the child process with the
// right stdin discipline, pumps its stdout/stderr to completion, interleaves
// privilege-escalation password prompts ahead of the main pump, and wraps
// the whole thing in a bounded-retry policy.
package connection

import (
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/opsmgr/remotessh/config"
)

// Connection drives one ssh session to one host. It is not safe for
// concurrent use by multiple goroutines, but distinct Connections (one per
// host, per the caller's worker-per-host model) share no mutable state
// beyond the read-only GlobalConfig.
type Connection struct {
	Global *config.GlobalConfig
	Host   config.HostVars
	Play   *config.PlayContext
	Policy EscalationPolicy // nil if Play.Become is false

	Logf func(format string, v ...interface{})

	commonArgs []string
	connected  bool
	homeDir    string // overridable in tests
	sessionID  string // correlates this Connection's log lines across retries

	launcher processLauncher
}

func (c *Connection) log(format string, v ...interface{}) {
	if c.Logf != nil {
		c.Logf("[%s] "+format, append([]interface{}{c.sessionID}, v...)...)
	}
}

// Connect composes commonArgs exactly once per session; a second call is a
// no-op.
func (c *Connection) Connect() error {
	if c.connected {
		return nil
	}
	if c.sessionID == "" {
		c.sessionID = uuid.NewString()
	}
	b := &argBuilder{global: c.Global, host: c.Host, play: c.Play, homeDir: c.homeDir}
	args, err := b.build()
	if err != nil {
		return err
	}
	c.commonArgs = args
	c.connected = true
	c.launcher.logf = c.Logf
	return nil
}

// Close releases multiplex state. It is a deliberate no-op: an explicit
// "ssh -O stop" is left for the control master's own ControlPersist timeout
// rather than torn down here, since a sibling Connection to the same host
// may still be using it.
func (c *Connection) Close() error {
	return nil
}

// ExecCommand runs cmd on the remote host, retrying transport-level
// failures per RetryController. in_data, when non-nil, is piped to the
// remote command's stdin. sudoable gates whether privilege escalation may
// apply to this particular command (some commands, e.g. module transfer,
// are never run under become).
//
// Returns (exitCode, stdout, stderr).
func (c *Connection) ExecCommand(cmd string, inData []byte, sudoable bool) (int, []byte, []byte, error) {
	if err := c.Connect(); err != nil {
		return -1, nil, nil, err
	}

	res, err := runWithRetry(c.Global.SSHRetries, c.log, func() (*execResult, error) {
		return c.execOnce(cmd, inData, sudoable)
	})
	if err != nil {
		return -1, nil, nil, err
	}
	return res.exitCode, res.stdout, res.stderr, nil
}

// execOnce is the single attempt RetryController wraps: build argv, launch,
// optionally run the escalation handshake, then pump to completion.
func (c *Connection) execOnce(cmd string, inData []byte, sudoable bool) (*execResult, error) {
	argv := append([]string{}, c.commonArgs...)
	escalating := sudoable && c.Play.Become && c.Play.Prompt != ""

	if escalating && !isAllowedBecomeMethod(c.Global.BecomeMethods, c.Play.BecomeMethod) {
		return nil, NewConfigurationError("become_method %q is not in the configured allow-list", c.Play.BecomeMethod)
	}

	hostArg := c.Play.RemoteAddr
	hasInData := len(inData) > 0

	sshArgv := append([]string{"ssh"}, argv...)
	sshArgv = append(sshArgv, verbosityFlag(c.Play.Verbosity)...)
	sshArgv = append(sshArgv, ttyFlag(hasInData)...)
	sshArgv = append(sshArgv, hostArg, cmd)

	var pwPipe *passwordPipe
	if c.Play.Password != "" {
		var err error
		pwPipe, err = newPasswordPipe()
		if err != nil {
			return nil, err
		}
		sshArgv = pwPipe.prependSSHPass(sshArgv)
	}

	var extraFiles []*os.File
	if pwPipe != nil {
		extraFiles = append(extraFiles, pwPipe.read)
	}
	lp, err := c.launcher.run(sshArgv, len(inData) > 0, extraFiles...)
	if err != nil {
		if pwPipe != nil {
			pwPipe.closeOnError()
		}
		return nil, err
	}

	if pwPipe != nil {
		if err := pwPipe.send(c.Play.Password); err != nil {
			return nil, err
		}
	}

	var prefixOut, prefixErr []byte
	becomePassSet := c.Play.BecomePass != ""

	if escalating {
		outcome := runEscalationHandshake(lp, c.Policy, c.Play.Timeout)
		if outcome.err != nil {
			return nil, outcome.err
		}
		if outcome.passPrompt {
			if !becomePassSet {
				return nil, NewAuthError("missing %s password", c.Play.BecomeMethod)
			}
			if err := sendBecomePassword(lp, c.Play.BecomePass); err != nil {
				return nil, err
			}
		} else {
			prefixOut, prefixErr = outcome.stdout, outcome.stderr
		}
	}

	pump := ioPump(lp, inData, escalating, becomePassSet, c.Policy, prefixOut, prefixErr, c.Logf)
	if pump.err != nil {
		return nil, pump.err
	}

	exitCode := exitCodeOf(lp)
	if exitCode == 255 {
		c.log("ssh %s exited 255 (transport failure)", hostArg)
	}

	if c.Global.HostKeyChecking && pwPipe != nil && exitCode == 6 {
		return nil, &HostKeyError{Host: hostArg}
	}
	if exitCode != 0 && hasControlPersistError(pump.stderr) {
		return nil, NewConfigurationError("ssh on this host does not support ControlPersist; set GlobalConfig.SSHArgs to omit it and retry")
	}

	return &execResult{exitCode: exitCode, stdout: pump.stdout, stderr: pump.stderr}, nil
}

// hasControlPersistError reports whether stderr carries one of the two
// messages older ssh clients emit when ControlPersist is unsupported.
func hasControlPersistError(stderr []byte) bool {
	s := string(stderr)
	return strings.Contains(s, "Bad configuration option: ControlPersist") ||
		strings.Contains(s, "unknown configuration option: ControlPersist")
}

// verbosityFlag maps PlayContext.Verbosity to ssh's own -q/-vvv flags:
// anything above 3 gets -vvv, everything else gets -q. ssh has no -v/-vv
// granularity in this mapping.
func verbosityFlag(verbosity int) []string {
	if verbosity > 3 {
		return []string{"-vvv"}
	}
	return []string{"-q"}
}

// ttyFlag forces a pseudo-terminal (-tt) when no in_data is supplied, and
// otherwise leaves ssh's own tty negotiation alone.
func ttyFlag(hasInData bool) []string {
	if !hasInData {
		return []string{"-tt"}
	}
	return nil
}

// isAllowedBecomeMethod reports whether method appears in allowed. An empty
// allow-list is treated as "allow anything" so a caller that never set
// GlobalConfig.BecomeMethods explicitly doesn't get spuriously locked out.
func isAllowedBecomeMethod(allowed []string, method string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, m := range allowed {
		if m == method {
			return true
		}
	}
	return false
}

// exitCodeOf extracts the child's exit status after ioPump has reaped the
// child. 255 is returned for any signal-death or unavailable exit status,
// matching ssh's own convention for transport failures.
func exitCodeOf(lp *launchedProcess) int {
	state := lp.cmd.ProcessState
	if state == nil {
		return 255
	}
	if code := state.ExitCode(); code >= 0 {
		return code
	}
	return 255
}
