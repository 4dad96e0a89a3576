package connection

import (
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/creack/pty"
)

// stdinSink is the write-and-close interface DESIGN NOTES section 9 asks
// for: the caller writes in_data (if any) and closes it without caring
// whether the underlying fd is a pipe's write end or a pty master.
type stdinSink interface {
	io.Writer
	io.Closer
}

// launchedProcess bundles the spawned *exec.Cmd with the stdio handles the
// rest of the pipeline (EscalationHandshake, IOPump) needs.
type launchedProcess struct {
	cmd    *exec.Cmd
	stdin  stdinSink
	stdout io.ReadCloser
	stderr io.ReadCloser

	// ptyMaster is non-nil when stdin is backed by a pseudo-terminal
	// rather than a pipe; stdout and stderr are always pipes. Kept so
	// ioPump can close it once the child has exited.
	ptyMaster *os.File
}

// processLauncher spawns the ssh/scp/sftp child process with this stdin
// discipline: a pipe when in_data is non-empty, otherwise an attempted pty
// allocation with a transparent fallback to a pipe.
type processLauncher struct {
	logf func(format string, v ...interface{})
}

func (l *processLauncher) log(format string, v ...interface{}) {
	if l.logf != nil {
		l.logf(format, v...)
	}
}

// run spawns argv[0] with argv[1:] as arguments. hasInData controls the
// stdin discipline: pipe when true, pty-with-pipe-fallback when false.
// extraFiles, if non-empty, is handed to cmd.ExtraFiles verbatim: the
// child sees each one starting at fd 3, in order (e.g. the sshpass
// password pipe's read end lands on fd 3 in the child).
func (l *processLauncher) run(argv []string, hasInData bool, extraFiles ...*os.File) (*launchedProcess, error) {
	if len(argv) == 0 {
		return nil, NewConfigurationError("empty argv")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.ExtraFiles = extraFiles

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, wrapConnectionFailure(err, "error creating stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, wrapConnectionFailure(err, "error creating stderr pipe")
	}

	lp := &launchedProcess{cmd: cmd, stdout: stdout, stderr: stderr}

	var ptySlave *os.File
	if hasInData {
		sink, err := cmd.StdinPipe()
		if err != nil {
			return nil, wrapConnectionFailure(err, "error creating stdin pipe")
		}
		lp.stdin = sink
	} else {
		// Some remote shells refuse a non-tty stdin for an interactive
		// session, but piping pipelined module data in tty mode
		// triggers interactive-mode line parsing on the remote end
		// (see the -tt discussion this mirrors). We therefore try a
		// pty first and only fall back to a pipe if allocation fails.
		master, slave, ptyErr := pty.Open()
		if ptyErr != nil {
			l.log("pty allocation failed (%v), falling back to a pipe", ptyErr)
			sink, err := cmd.StdinPipe()
			if err != nil {
				return nil, wrapConnectionFailure(err, "error creating stdin pipe")
			}
			lp.stdin = sink
		} else {
			cmd.Stdin = slave
			lp.stdin = master
			lp.ptyMaster = master
			ptySlave = slave
		}
	}

	if err := cmd.Start(); err != nil {
		if lp.ptyMaster != nil {
			lp.ptyMaster.Close()
			ptySlave.Close()
		}
		return nil, wrapConnectionFailure(err, "error starting %s", argv[0])
	}

	// The slave side was duped into the child by cmd.Start; the parent's
	// copy would otherwise keep the slave end of the pty open forever.
	if ptySlave != nil {
		ptySlave.Close()
	}

	return lp, nil
}

// passwordPipe is the anonymous pipe sshpass uses as its password
// side-channel: the argv gets "sshpass -d<read_fd>" prepended, and the
// caller later writes the password, then closes both ends in order.
type passwordPipe struct {
	read  *os.File
	write *os.File
}

// newPasswordPipe probes for the sshpass binary and allocates the pipe.
func newPasswordPipe() (*passwordPipe, error) {
	if _, err := exec.LookPath("sshpass"); err != nil {
		return nil, NewConfigurationError("sshpass is required for password authentication but was not found on PATH")
	}
	r, w, err := os.Pipe()
	if err != nil {
		return nil, wrapConnectionFailure(err, "error creating password pipe")
	}
	return &passwordPipe{read: r, write: w}, nil
}

// childPasswordFD is the fd the password pipe's read end lands on inside
// the child. cmd.ExtraFiles renumbers every file passed to it starting at
// fd 3 (0-2 are stdin/stdout/stderr); as long as the password pipe is the
// sole entry in ExtraFiles, it is always fd 3 regardless of what
// descriptor number the parent process happened to allocate it on.
const childPasswordFD = 3

// prependSSHPass returns a new argv with ["sshpass", "-d<fd>"] prepended,
// referencing the fd the read end will have inside the child, not the
// parent's own fd number for it.
func (p *passwordPipe) prependSSHPass(argv []string) []string {
	out := make([]string, 0, len(argv)+2)
	out = append(out, "sshpass", sshpassFDArg(childPasswordFD))
	out = append(out, argv...)
	return out
}

// send closes the parent's copy of the read end first, so the child (which
// inherited it) is the pipe's sole reader, then writes password+"\n" to the
// write end and finally closes the write end.
func (p *passwordPipe) send(password string) error {
	if err := p.read.Close(); err != nil {
		return wrapConnectionFailure(err, "error closing password pipe read end")
	}
	_, err := io.WriteString(p.write, password+"\n")
	closeErr := p.write.Close()
	if err != nil {
		return wrapConnectionFailure(err, "error writing password to sshpass pipe")
	}
	if closeErr != nil {
		return wrapConnectionFailure(closeErr, "error closing password pipe write end")
	}
	return nil
}

// closeOnError is used on a launch failure path before send() ever runs.
func (p *passwordPipe) closeOnError() {
	p.read.Close()
	p.write.Close()
}

func sshpassFDArg(fd uintptr) string {
	return "-d" + strconv.FormatUint(uint64(fd), 10)
}
