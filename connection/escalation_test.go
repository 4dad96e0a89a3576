package connection

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestEscalationHandshakeDetectsSuccess covers a fake ssh that writes the
// success marker immediately.
func TestEscalationHandshakeDetectsSuccess(t *testing.T) {
	l := &processLauncher{}
	lp, err := l.run([]string{"/bin/sh", "-c", "echo BECOME-SUCCESS-xxx"}, true)
	require.NoError(t, err)

	policy := SudoPolicy("BECOME-SUCCESS-xxx")
	outcome := runEscalationHandshake(lp, policy, 5)
	require.NoError(t, outcome.err)
	require.False(t, outcome.passPrompt)
	require.Contains(t, string(outcome.stdout), "BECOME-SUCCESS-xxx")
}

// TestEscalationHandshakeDetectsPasswordPrompt covers a fake ssh that
// writes a password prompt and waits.
func TestEscalationHandshakeDetectsPasswordPrompt(t *testing.T) {
	l := &processLauncher{}
	lp, err := l.run([]string{"/bin/sh", "-c", "printf '[sudo] password: '; sleep 5"}, true)
	require.NoError(t, err)
	defer lp.cmd.Process.Kill()

	policy := SudoPolicy("BECOME-SUCCESS-xxx")
	outcome := runEscalationHandshake(lp, policy, 5)
	require.NoError(t, outcome.err)
	require.True(t, outcome.passPrompt)
}

func TestEscalationHandshakeDetectsIncorrectPassword(t *testing.T) {
	l := &processLauncher{}
	lp, err := l.run([]string{"/bin/sh", "-c", "echo 'Sorry, try again.' 1>&2; sleep 5"}, true)
	require.NoError(t, err)
	defer lp.cmd.Process.Kill()

	policy := SudoPolicy("BECOME-SUCCESS-xxx")
	outcome := runEscalationHandshake(lp, policy, 5)
	require.Error(t, outcome.err)
	require.IsType(t, &AuthError{}, outcome.err)
}

func TestEscalationHandshakeExitsOnEOFWithoutMatch(t *testing.T) {
	l := &processLauncher{}
	lp, err := l.run([]string{"/bin/sh", "-c", "echo nothing relevant"}, true)
	require.NoError(t, err)

	policy := SudoPolicy("BECOME-SUCCESS-xxx")
	outcome := runEscalationHandshake(lp, policy, 5)
	require.NoError(t, outcome.err)
	require.False(t, outcome.passPrompt)
	require.Contains(t, string(outcome.stdout), "nothing relevant")
}

func TestEscalationHandshakeTimesOut(t *testing.T) {
	l := &processLauncher{}
	lp, err := l.run([]string{"/bin/sh", "-c", "sleep 5"}, true)
	require.NoError(t, err)
	defer lp.cmd.Process.Kill()

	policy := SudoPolicy("BECOME-SUCCESS-xxx")
	outcome := runEscalationHandshake(lp, policy, 1)
	require.Error(t, outcome.err)
	require.IsType(t, &ConnectionFailure{}, outcome.err)
}

func TestSendBecomePassword(t *testing.T) {
	l := &processLauncher{}
	lp, err := l.run([]string{"/bin/sh", "-c", "read line; echo \"$line\""}, true)
	require.NoError(t, err)

	require.NoError(t, sendBecomePassword(lp, "hunter2"))

	out := ioPump(lp, nil, false, false, nil, nil, nil, nil)
	require.NoError(t, out.err)
	require.Equal(t, "hunter2\n", string(out.stdout))
}
