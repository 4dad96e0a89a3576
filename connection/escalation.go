package connection

import (
	"io"
	"time"
)

// escalationOutcome is what runEscalationHandshake hands back to the caller:
// whether a password prompt was seen (and therefore needs writing to stdin),
// the leftover accumulated buffers to prefix onto ioPump's own output, and
// any fatal error (AuthError, ConnectionFailure) that should abort the whole
// exec_command call before ioPump ever runs.
type escalationOutcome struct {
	passPrompt bool
	stdout     []byte
	stderr     []byte
	err        error
}

// runEscalationHandshake watches the child's stdout/stderr for a become
// success marker or a password prompt before the command output is ever
// pumped to the caller. It is only called when PlayContext.prompt is
// non-empty. It reuses ioPump's startReader goroutines, but unlike ioPump's
// 1-second poll granularity, the select here is bounded by
// PlayContext.timeout.
//
// Each select branch declares and consumes its own chunk variable, so a
// stale chunk from one iteration can never leak into the next and
// spuriously terminate the loop.
func runEscalationHandshake(lp *launchedProcess, policy EscalationPolicy, timeoutSeconds int) *escalationOutcome {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 10
	}
	timeout := time.Duration(timeoutSeconds) * time.Second

	var stdoutAcc, stderrAcc []byte

	stdoutCh := startReader(lp.stdout)
	stderrCh := startReader(lp.stderr)

	for {
		buf := append(append([]byte{}, stdoutAcc...), stderrAcc...)
		if policy.CheckBecomeSuccess(buf) {
			return &escalationOutcome{stdout: stdoutAcc, stderr: stderrAcc}
		}
		if policy.CheckPasswordPrompt(stdoutAcc) || policy.CheckPasswordPrompt(stderrAcc) {
			return &escalationOutcome{passPrompt: true, stdout: stdoutAcc, stderr: stderrAcc}
		}
		if stdoutCh == nil && stderrCh == nil {
			// Both streams hit EOF without a success marker or a
			// prompt ever appearing; the child will be pumped
			// normally and its exit code carries the story.
			return &escalationOutcome{stdout: stdoutAcc, stderr: stderrAcc}
		}

		select {
		case chunk, ok := <-stderrCh:
			if !ok {
				stderrCh = nil
				continue
			}
			if chunk.err == io.EOF || len(chunk.data) == 0 {
				stderrCh = nil
				continue
			}
			stderrAcc = append(stderrAcc, chunk.data...)
			if policy.CheckIncorrectPassword(stderrAcc) {
				return &escalationOutcome{stdout: stdoutAcc, stderr: stderrAcc, err: NewAuthError("incorrect become password")}
			}

		case chunk, ok := <-stdoutCh:
			if !ok {
				stdoutCh = nil
				continue
			}
			if chunk.err == io.EOF || len(chunk.data) == 0 {
				stdoutCh = nil
				continue
			}
			stdoutAcc = append(stdoutAcc, chunk.data...)

		case <-time.After(timeout):
			return &escalationOutcome{
				stdout: stdoutAcc,
				stderr: stderrAcc,
				err:    NewConnectionFailure("timed out waiting for privilege escalation prompt; stdout so far: %q", string(stdoutAcc)),
			}
		}
	}
}

// sendBecomePassword writes becomePass+"\n" to the child's stdin, the
// handshake's final step once a password prompt has been confirmed.
func sendBecomePassword(lp *launchedProcess, becomePass string) error {
	if _, err := io.WriteString(lp.stdin, becomePass+"\n"); err != nil {
		return wrapConnectionFailure(err, "error writing become password to stdin")
	}
	return nil
}
