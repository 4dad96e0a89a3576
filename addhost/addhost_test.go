package addhost

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunParsesPortSuffix(t *testing.T) {
	res, err := Run(Params{Name: "web1.example.com:2222"})
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, "web1.example.com", res.AddHost.HostName)
	require.Equal(t, 2222, res.AddHost.HostVars["ansible_ssh_port"])
}

func TestRunBareHostname(t *testing.T) {
	res, err := Run(Params{Name: "web1.example.com"})
	require.NoError(t, err)
	require.Equal(t, "web1.example.com", res.AddHost.HostName)
	require.NotContains(t, res.AddHost.HostVars, "ansible_ssh_port")
}

// TestRunNameWinsOverHostname checks that when both are set, Name takes
// precedence and Hostname is only the fallback.
func TestRunNameWinsOverHostname(t *testing.T) {
	res, err := Run(Params{Name: "web1.example.com", Hostname: "web2.example.com"})
	require.NoError(t, err)
	require.Equal(t, "web1.example.com", res.AddHost.HostName)
}

func TestRunFallsBackToHostname(t *testing.T) {
	res, err := Run(Params{Hostname: "web2.example.com:2222"})
	require.NoError(t, err)
	require.Equal(t, "web2.example.com", res.AddHost.HostName)
	require.Equal(t, 2222, res.AddHost.HostVars["ansible_ssh_port"])
}

func TestRunIPv6WithPort(t *testing.T) {
	res, err := Run(Params{Name: "[::1]:2200"})
	require.NoError(t, err)
	require.Equal(t, "::1", res.AddHost.HostName)
	require.Equal(t, 2200, res.AddHost.HostVars["ansible_ssh_port"])
}

func TestRunInvalidHostname(t *testing.T) {
	_, err := Run(Params{Name: "web1:notaport"})
	require.Error(t, err)
	require.IsType(t, &ErrInvalidHostname{}, err)
}

func TestRunEmptyHostname(t *testing.T) {
	_, err := Run(Params{})
	require.Error(t, err)
}

func TestRunCarriesGroupsAndVars(t *testing.T) {
	res, err := Run(Params{
		Name:      "web1",
		GroupName: "web",
		Groups:    []string{"all"},
		Vars:      map[string]interface{}{"ansible_user": "deploy"},
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"all", "web"}, res.AddHost.Groups)
	require.Equal(t, "deploy", res.AddHost.HostVars["ansible_user"])
	require.NotEmpty(t, res.AddHost.RequestID)
}

func TestRunCheckModeSkips(t *testing.T) {
	res, err := Run(Params{Name: "web1", CheckMode: true})
	require.NoError(t, err)
	require.True(t, res.Skipped)
	require.False(t, res.Changed)
	require.Nil(t, res.AddHost)
}
