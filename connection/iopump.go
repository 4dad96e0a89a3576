package connection

import (
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/opsmgr/remotessh/internal/errwrap"
)

// pollInterval bounds how long the pump waits with no output ready before
// checking whether the child has exited while a stream is still open.
const pollInterval = 1 * time.Second

// readChunkSize is the largest slice handed to a single Read call.
const readChunkSize = 9000

type streamChunk struct {
	data []byte
	err  error // io.EOF on clean close, anything else is a real read error
}

// pumpOutcome is what ioPump hands back to the caller: the accumulated
// stdout/stderr and any transport-level error that should abort the whole
// exec_command call (as opposed to a plain non-zero remote exit code).
type pumpOutcome struct {
	stdout []byte
	stderr []byte
	err    error
}

// ioPump drains lp's stdout and stderr until both are at EOF and the
// process has exited: a single channel read per iteration (stderr checked
// first, so stderr is bounded under log floods), escalation-password
// monitoring while escalation is active, and a stdin close ordered strictly
// after the process exits (not before) to avoid a ControlMaster-holds-
// stdout-open hang.
//
// prefixStdout/prefixStderr are the escalation handshake's leftover
// buffers, prefixed onto the pump's own output so nothing seen during the
// handshake is lost.
func ioPump(lp *launchedProcess, inData []byte, escalating bool, becomePassSet bool, policy EscalationPolicy, prefixStdout, prefixStderr []byte, logf func(format string, v ...interface{})) *pumpOutcome {
	log := func(format string, v ...interface{}) {
		if logf != nil {
			logf(format, v...)
		}
	}

	stdoutAcc := append([]byte{}, prefixStdout...)
	stderrAcc := append([]byte{}, prefixStderr...)

	var stdinErr error
	stdinAlreadyClosed := false
	if len(inData) > 0 {
		if _, err := lp.stdin.Write(inData); err != nil {
			stdinErr = wrapConnectionFailure(err, "data could not be sent to remote host")
		}
		if cerr := lp.stdin.Close(); cerr != nil {
			stdinErr = errwrap.Append(stdinErr, wrapConnectionFailure(cerr, "error closing stdin after writing data"))
		}
		stdinAlreadyClosed = true
	}
	if stdinErr != nil {
		// Step 1's write failure is logged now and returned as a
		// transport failure once the drain finishes; draining the
		// child's output still happens so the caller sees whatever
		// diagnostic it printed.
		log("stdin write failed: %v", stdinErr)
	}

	stdoutCh := startReader(lp.stdout)
	stderrCh := startReader(lp.stderr)

	// The child is reaped with Process.Wait rather than cmd.Wait: cmd.Wait
	// closes the stdout/stderr read ends (and the stdin pipe) as soon as
	// the child exits, dropping output the readers have not consumed yet.
	// ProcessState is filled in here so exitCodeOf can read it afterwards.
	waitCh := make(chan error, 1)
	go func() {
		state, err := lp.cmd.Process.Wait()
		lp.cmd.ProcessState = state
		waitCh <- err
	}()

	var waitErr error
	waitDone := false

	rpipesOpen := 2

	// progress throttles the "still draining" trace line to at most once
	// every 2 seconds, so a command producing a steady trickle of output
	// over a long run doesn't flood the log at poll granularity.
	progress := &rate.Sometimes{Interval: 2 * time.Second}

	// checkEscalation implements step 3 of the loop contract: while
	// escalation is active, keep watching accumulated stdout for an
	// incorrect-password marker (when a become_pass was supplied) or an
	// unexpected fresh prompt (when it wasn't). Called after every read,
	// not just once per timeout, so a password failure is caught as soon
	// as it appears on the wire.
	checkEscalation := func() *pumpOutcome {
		if !escalating || policy == nil {
			return nil
		}
		if becomePassSet && policy.CheckIncorrectPassword(stdoutAcc) {
			return &pumpOutcome{stdout: stdoutAcc, stderr: stderrAcc, err: NewAuthError("incorrect become password")}
		}
		if !becomePassSet && policy.CheckPasswordPrompt(stdoutAcc) {
			return &pumpOutcome{stdout: stdoutAcc, stderr: stderrAcc, err: NewAuthError("missing become password")}
		}
		return nil
	}

	for {
		if rpipesOpen == 0 {
			if !waitDone {
				waitErr = <-waitCh
				waitDone = true
			}
			break
		}

		var handled bool

		// Priority drain: check stderr first without blocking, so a
		// flood of stdout never starves the stderr accumulator.
		select {
		case chunk, ok := <-stderrCh:
			if ok {
				rpipesOpen = handleChunk(chunk, &stderrAcc, &stderrCh, rpipesOpen)
			} else {
				stderrCh = nil
			}
			handled = true
		default:
		}
		if !handled {
			select {
			case chunk, ok := <-stdoutCh:
				if ok {
					rpipesOpen = handleChunk(chunk, &stdoutAcc, &stdoutCh, rpipesOpen)
				} else {
					stdoutCh = nil
				}
				handled = true
			default:
			}
		}

		if !handled {
			select {
			case chunk, ok := <-stderrCh:
				if ok {
					rpipesOpen = handleChunk(chunk, &stderrAcc, &stderrCh, rpipesOpen)
				} else {
					stderrCh = nil
				}
			case chunk, ok := <-stdoutCh:
				if ok {
					rpipesOpen = handleChunk(chunk, &stdoutAcc, &stdoutCh, rpipesOpen)
				} else {
					stdoutCh = nil
				}
			case <-time.After(pollInterval):
				// Timed out with nothing ready. If the process
				// has already exited, we're done regardless of
				// rpipesOpen (a ControlMaster can keep a stream
				// open forever).
				select {
				case waitErr = <-waitCh:
					waitDone = true
				default:
				}
			}
		}

		if out := checkEscalation(); out != nil {
			return out
		}

		progress.Do(func() {
			log("draining remote output: stdout=%d bytes stderr=%d bytes", len(stdoutAcc), len(stderrAcc))
		})

		if waitDone {
			break
		}
	}

	if !stdinAlreadyClosed {
		// Close stdin only after the process has exited; closing it
		// earlier is what causes the documented ControlMaster hang.
		if cerr := lp.stdin.Close(); cerr != nil {
			stdinErr = errwrap.Append(stdinErr, cerr)
		}
	}
	if lp.ptyMaster != nil {
		lp.ptyMaster.Close()
	}
	lp.stdout.Close()
	lp.stderr.Close()

	out := &pumpOutcome{stdout: stdoutAcc, stderr: stderrAcc}
	if stdinErr != nil {
		out.err = stdinErr
	}
	_ = waitErr // the exit code itself comes from lp.cmd.ProcessState, not here
	return out
}

// handleChunk appends a successfully-read chunk to acc, or marks the
// stream closed (EOF) and returns the decremented open-stream count.
func handleChunk(chunk streamChunk, acc *[]byte, ch *chan streamChunk, rpipesOpen int) int {
	if chunk.err == io.EOF || len(chunk.data) == 0 {
		*ch = nil
		return rpipesOpen - 1
	}
	*acc = append(*acc, chunk.data...)
	return rpipesOpen
}

// startReader launches a goroutine that reads r in readChunkSize pieces and
// forwards them on the returned channel, closing it after sending a final
// EOF/error chunk. The channel is unbuffered so only one chunk is ever "in
// flight", matching the "read up to 9000 bytes" / "drain one fd per
// iteration" contract instead of racing ahead of the consumer.
func startReader(r io.Reader) chan streamChunk {
	ch := make(chan streamChunk)
	go func() {
		defer close(ch)
		buf := make([]byte, readChunkSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				ch <- streamChunk{data: chunk}
			}
			if err != nil {
				if err != io.EOF {
					ch <- streamChunk{err: err}
				}
				ch <- streamChunk{err: io.EOF}
				return
			}
		}
	}()
	return ch
}
