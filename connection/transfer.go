package connection

import (
	"fmt"

	"github.com/spf13/afero"
)

// localFS is the filesystem PutFile checks for the source file's
// existence. It defaults to the real OS filesystem but is overridable in
// tests (github.com/spf13/afero.NewMemMapFs) so FileNotFound can be
// exercised without touching disk.
var localFS afero.Fs = afero.NewOsFs()

// bracketHost returns the "[host]" form scp's host:path syntax needs for
// IPv6 literals. Applying it unconditionally is harmless for hostnames and
// IPv4 addresses too.
func bracketHost(addr string) string {
	return fmt.Sprintf("[%s]", addr)
}

// PutFile uploads localPath to remotePath, choosing scp or sftp per
// GlobalConfig.ScpIfSSH.
func (c *Connection) PutFile(localPath, remotePath string) error {
	if err := c.Connect(); err != nil {
		return err
	}
	exists, err := afero.Exists(localFS, localPath)
	if err != nil {
		return err
	}
	if !exists {
		return &FileNotFound{Path: localPath}
	}

	var argv []string
	var inData []byte

	if c.Global.ScpIfSSH {
		argv = append([]string{"scp"}, c.commonArgs...)
		argv = append(argv, c.Global.SCPExtraArgs...)
		argv = append(argv, localPath, fmt.Sprintf("%s:%s", bracketHost(c.Play.RemoteAddr), quoteRemotePath(remotePath)))
	} else {
		argv = append([]string{"sftp"}, c.commonArgs...)
		argv = append(argv, bracketHost(c.Play.RemoteAddr))
		inData = []byte(fmt.Sprintf("put %s %s\n", quoteRemotePath(localPath), quoteRemotePath(remotePath)))
	}

	return c.runTransfer(argv, inData)
}

// FetchFile downloads remotePath to localPath, symmetric with PutFile.
// The sftp variant prepends "-b -" (batch mode) when
// GlobalConfig.SFTPBatchMode is set, so a failed fetch yields a non-zero
// exit code instead of sftp's default "keep going" behavior.
func (c *Connection) FetchFile(remotePath, localPath string) error {
	if err := c.Connect(); err != nil {
		return err
	}

	var argv []string
	var inData []byte

	if c.Global.ScpIfSSH {
		argv = append([]string{"scp"}, c.commonArgs...)
		argv = append(argv, c.Global.SCPExtraArgs...)
		argv = append(argv, fmt.Sprintf("%s:%s", bracketHost(c.Play.RemoteAddr), quoteRemotePath(remotePath)), localPath)
	} else {
		argv = append([]string{"sftp"}, c.commonArgs...)
		if c.Global.SFTPBatchMode {
			argv = append(argv, "-b", "-")
		}
		argv = append(argv, bracketHost(c.Play.RemoteAddr))
		inData = []byte(fmt.Sprintf("get %s %s\n", quoteRemotePath(remotePath), quoteRemotePath(localPath)))
	}

	return c.runTransfer(argv, inData)
}

// runTransfer launches argv via ProcessLauncher and pumps it to completion
// with no escalation handshake (file transfers are never run under
// become); a non-zero exit surfaces as a TransferError carrying both
// streams.
func (c *Connection) runTransfer(argv []string, inData []byte) error {
	lp, err := c.launcher.run(argv, len(inData) > 0)
	if err != nil {
		return err
	}

	pump := ioPump(lp, inData, false, false, nil, nil, nil, c.Logf)
	if pump.err != nil {
		return pump.err
	}

	exitCode := exitCodeOf(lp)
	if exitCode != 0 {
		return &TransferError{
			Msg:    fmt.Sprintf("%s exited %d", argv[0], exitCode),
			Stdout: string(pump.stdout),
			Stderr: string(pump.stderr),
		}
	}
	return nil
}

// quoteRemotePath wraps a path in double quotes if it contains characters
// that would otherwise be split by the remote shell or sftp's own
// tokenizer.
func quoteRemotePath(p string) string {
	needsQuote := false
	for _, r := range p {
		if r == ' ' || r == '\t' || r == '"' || r == '\'' {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		return p
	}
	return fmt.Sprintf("%q", p)
}
