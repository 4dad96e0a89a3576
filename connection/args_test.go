package connection

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opsmgr/remotessh/config"
)

func newTestBuilder(t *testing.T, global *config.GlobalConfig, host config.HostVars, play *config.PlayContext) *argBuilder {
	return &argBuilder{global: global, host: host, play: play, homeDir: t.TempDir()}
}

// TestHostArgsOverrideGlobal checks that a per-host ssh_args override wins
// over the global default.
func TestHostArgsOverrideGlobal(t *testing.T) {
	global := config.Default()
	global.SSHArgs = "-o GlobalOnly=yes"
	host := config.HostVars{SSHArgs: "-o HostWins=yes"}
	play := &config.PlayContext{RemoteAddr: "example.com", Password: "secret"}

	b := newTestBuilder(t, global, host, play)
	args, err := b.build()
	require.NoError(t, err)

	require.Contains(t, args, "HostWins=yes")
	require.NotContains(t, args, "GlobalOnly=yes")
}

// TestControlPathIffControlPersist checks that an explicit ControlPath is
// only synthesized when ControlPersist is present in the base args.
func TestControlPathIffControlPersist(t *testing.T) {
	global := config.Default() // default base args include ControlPersist
	play := &config.PlayContext{RemoteAddr: "example.com", Password: "secret"}

	b := newTestBuilder(t, global, config.HostVars{}, play)
	args, err := b.build()
	require.NoError(t, err)
	require.True(t, containsOptionSubstring(args, "ControlPath"))
}

func TestNoControlPathWithoutControlPersist(t *testing.T) {
	global := config.Default()
	global.SSHArgs = "-o Foo=bar"
	play := &config.PlayContext{RemoteAddr: "example.com", Password: "secret"}

	b := newTestBuilder(t, global, config.HostVars{}, play)
	args, err := b.build()
	require.NoError(t, err)
	require.False(t, containsOptionSubstring(args, "ControlPath"))
}

// TestNoPasswordLocksDownAuth checks that the absence of a password
// disables password/keyboard-interactive auth entirely.
func TestNoPasswordLocksDownAuth(t *testing.T) {
	global := config.Default()
	play := &config.PlayContext{RemoteAddr: "example.com"}

	b := newTestBuilder(t, global, config.HostVars{}, play)
	args, err := b.build()
	require.NoError(t, err)
	require.Contains(t, args, "PasswordAuthentication=no")
	require.Contains(t, args, "KbdInteractiveAuthentication=no")
}

func TestPasswordOmitsAuthLockdown(t *testing.T) {
	global := config.Default()
	play := &config.PlayContext{RemoteAddr: "example.com", Password: "secret"}

	b := newTestBuilder(t, global, config.HostVars{}, play)
	args, err := b.build()
	require.NoError(t, err)
	require.NotContains(t, args, "PasswordAuthentication=no")
	require.NotContains(t, args, "KbdInteractiveAuthentication=no")
}

func TestPortAndIdentityFile(t *testing.T) {
	global := config.Default()
	play := &config.PlayContext{RemoteAddr: "example.com", Password: "x", Port: 2222, PrivateKeyFile: "/home/x/.ssh/id_rsa"}

	b := newTestBuilder(t, global, config.HostVars{}, play)
	args, err := b.build()
	require.NoError(t, err)
	require.Contains(t, args, fmt.Sprintf("Port=%d", 2222))
	require.Contains(t, args, fmt.Sprintf("IdentityFile=%q", "/home/x/.ssh/id_rsa"))
}

func TestConnectTimeoutAlwaysAppended(t *testing.T) {
	global := config.Default()
	play := &config.PlayContext{RemoteAddr: "example.com", Password: "x"}

	b := newTestBuilder(t, global, config.HostVars{}, play)
	args, err := b.build()
	require.NoError(t, err)
	require.True(t, containsOptionSubstring(args, "ConnectTimeout="))
}

func TestExtraArgsPlayContextBeatsHostVars(t *testing.T) {
	global := config.Default()
	host := config.HostVars{SSHExtraArgs: "-o HostExtra=yes"}
	play := &config.PlayContext{RemoteAddr: "example.com", Password: "x", SSHExtraArgs: "-o PlayExtra=yes"}

	b := newTestBuilder(t, global, host, play)
	args, err := b.build()
	require.NoError(t, err)
	require.Contains(t, args, "PlayExtra=yes")
	require.NotContains(t, args, "HostExtra=yes")
}

func TestExpandUser(t *testing.T) {
	require.Equal(t, "/home/x/.ssh/id_rsa", expandUser("~/.ssh/id_rsa", "/home/x"))
	require.Equal(t, "/abs/path", expandUser("/abs/path", "/home/x"))
}
