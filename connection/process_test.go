package connection

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRunWithInDataUsesPipeNotPty checks that when in_data is supplied,
// stdin must be a plain pipe, never a pty master.
func TestRunWithInDataUsesPipeNotPty(t *testing.T) {
	l := &processLauncher{}
	lp, err := l.run([]string{"/bin/sh", "-c", "cat"}, true)
	require.NoError(t, err)
	require.Nil(t, lp.ptyMaster)

	_, err = lp.stdin.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, lp.stdin.Close())

	out, err := io.ReadAll(lp.stdout)
	require.NoError(t, err)
	require.Equal(t, "payload", string(out))
	require.NoError(t, lp.cmd.Wait())
}

// TestRunWithoutInDataAllocatesStdin checks that without in_data, stdin is
// either a pty master or (on a platform where pty allocation fails) a
// pipe, but never nil.
func TestRunWithoutInDataAllocatesStdin(t *testing.T) {
	l := &processLauncher{}
	lp, err := l.run([]string{"/bin/sh", "-c", "echo hi"}, false)
	require.NoError(t, err)
	require.NotNil(t, lp.stdin)
	if lp.ptyMaster != nil {
		defer lp.ptyMaster.Close()
	}

	out, err := io.ReadAll(lp.stdout)
	require.NoError(t, err)
	require.Equal(t, "hi\n", string(out))
	require.NoError(t, lp.cmd.Wait())
}

func TestRunRejectsEmptyArgv(t *testing.T) {
	l := &processLauncher{}
	_, err := l.run(nil, false)
	require.Error(t, err)
	require.IsType(t, &ConfigurationError{}, err)
}

func TestNewPasswordPipeFailsWithoutSSHPass(t *testing.T) {
	// sshpass is not expected to be on the PATH of a minimal test
	// environment; if it is installed this test is skipped rather than
	// asserting a false negative.
	if _, err := newPasswordPipe(); err == nil {
		t.Skip("sshpass is installed in this environment")
	}
}

func TestSSHPassFDArg(t *testing.T) {
	require.Equal(t, "-d3", sshpassFDArg(3))
}

// TestPasswordPipeReachesChildFD3 exercises the actual fd-passing plumbing
// sshpass relies on: the pipe's read end must arrive in the child as fd 3,
// not whatever fd number the parent happened to allocate it on. It stands
// in for a real sshpass by having the child shell itself read from fd 3.
func TestPasswordPipeReachesChildFD3(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	pp := &passwordPipe{read: r, write: w}

	l := &processLauncher{}
	lp, err := l.run([]string{"/bin/sh", "-c", "read line <&3; echo \"$line\""}, false, pp.read)
	require.NoError(t, err)
	if lp.ptyMaster != nil {
		defer lp.ptyMaster.Close()
	}

	require.NoError(t, pp.send("hunter2"))

	out, err := io.ReadAll(lp.stdout)
	require.NoError(t, err)
	require.Equal(t, "hunter2\n", string(out))
	require.NoError(t, lp.cmd.Wait())
}
