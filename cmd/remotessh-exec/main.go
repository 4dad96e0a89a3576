// Command remotessh-exec is a small demonstration CLI for the connection
// package: it runs one command on one remote host, optionally under
// privilege escalation, and prints stdout/stderr the way the resulting
// exit code would be consumed by a higher-level orchestrator.
package main

import (
	"fmt"
	"os"

	"github.com/alexflint/go-arg"

	"github.com/opsmgr/remotessh/addhost"
	"github.com/opsmgr/remotessh/config"
	"github.com/opsmgr/remotessh/connection"
)

type args struct {
	Host           string `arg:"positional,required" help:"remote host to connect to"`
	Command        string `arg:"positional,required" help:"command to run on the remote host"`
	User           string `arg:"--user" help:"remote user"`
	Port           int    `arg:"--port" help:"remote ssh port"`
	PrivateKey     string `arg:"--private-key" help:"path to an ssh private key"`
	Password       string `arg:"--password,env:REMOTESSH_PASSWORD" help:"password for sshpass authentication"`
	Become         bool   `arg:"--become" help:"run the command under privilege escalation"`
	BecomeMethod   string `arg:"--become-method" default:"sudo" help:"privilege escalation method"`
	BecomePass     string `arg:"--become-pass,env:REMOTESSH_BECOME_PASS" help:"privilege escalation password"`
	Verbosity      int    `arg:"--verbosity" help:"ssh client verbosity; above 3 passes -vvv to ssh, otherwise -q"`
	Timeout        int    `arg:"--timeout" default:"10" help:"connect and escalation-prompt timeout in seconds"`
	AddHostInstead bool   `arg:"--add-host" help:"instead of executing, just run the add_host parser on Host and print the result"`
}

func (args) Description() string {
	return "run a command over ssh through the remotessh transport, or exercise the add_host parser"
}

func main() {
	var a args
	arg.MustParse(&a)

	if a.AddHostInstead {
		runAddHost(a)
		return
	}
	runExec(a)
}

func runAddHost(a args) {
	res, err := addhost.Run(addhost.Params{Hostname: a.Host})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if res.Skipped {
		fmt.Println("skipped (check mode)")
		return
	}
	fmt.Printf("host_name=%s groups=%v host_vars=%v\n", res.AddHost.HostName, res.AddHost.Groups, res.AddHost.HostVars)
}

func runExec(a args) {
	global := config.Load()

	var policy connection.EscalationPolicy
	if a.Become {
		policy = connection.SudoPolicy(fmt.Sprintf("BECOME-SUCCESS-%d", os.Getpid()))
	}

	prompt := ""
	if a.Become {
		prompt = "[sudo] password"
	}

	play := &config.PlayContext{
		RemoteAddr:   a.Host,
		RemoteUser:   a.User,
		Port:         a.Port,
		Password:     a.Password,
		PrivateKeyFile: a.PrivateKey,
		Timeout:      a.Timeout,
		Verbosity:    a.Verbosity,
		Become:       a.Become,
		BecomeMethod: a.BecomeMethod,
		BecomePass:   a.BecomePass,
		Prompt:       prompt,
	}

	conn := &connection.Connection{
		Global: global,
		Play:   play,
		Policy: policy,
		Logf:   func(format string, v ...interface{}) { fmt.Fprintf(os.Stderr, "remotessh: "+format+"\n", v...) },
	}

	exitCode, stdout, stderr, err := conn.ExecCommand(a.Command, nil, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	os.Stdout.Write(stdout)
	os.Stderr.Write(stderr)
	os.Exit(exitCode)
}
