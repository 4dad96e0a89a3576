package connection

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigurationError means the transport could not even be set up: an
// unwritable ControlPath directory, a missing sshpass binary when a
// password is configured, or an unsupported ControlPersist option detected
// from ssh's own stderr. It is never retried.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return fmt.Sprintf("configuration error: %s", e.Msg) }

// NewConfigurationError builds a *ConfigurationError with a formatted message.
func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// ConnectionFailure means the transport itself failed: a failed stdin write,
// a failed pipe/pty/process launch, or an escalation-prompt timeout.
// RetryController retries these up to its budget. An exit code of 255 that
// persists after retries are exhausted is returned as the exit code, not as
// this error.
type ConnectionFailure struct {
	Msg string
}

func (e *ConnectionFailure) Error() string { return fmt.Sprintf("connection failure: %s", e.Msg) }

// NewConnectionFailure builds a *ConnectionFailure with a formatted message.
func NewConnectionFailure(format string, args ...interface{}) *ConnectionFailure {
	return &ConnectionFailure{Msg: fmt.Sprintf(format, args...)}
}

// AuthError means privilege-escalation authentication itself failed: a
// password prompt appeared with no become_pass configured, or the
// escalation wrapper reported an incorrect password. Fatal, never retried.
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string { return fmt.Sprintf("auth error: %s", e.Msg) }

// NewAuthError builds a *AuthError with a formatted message.
func NewAuthError(format string, args ...interface{}) *AuthError {
	return &AuthError{Msg: fmt.Sprintf(format, args...)}
}

// FileNotFound means put_file's local source file does not exist. No child
// process is ever spawned for this error.
type FileNotFound struct {
	Path string
}

func (e *FileNotFound) Error() string { return fmt.Sprintf("file not found: %s", e.Path) }

// TransferError means scp/sftp exited non-zero; both streams are preserved.
type TransferError struct {
	Msg    string
	Stdout string
	Stderr string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer error: %s (stdout=%q stderr=%q)", e.Msg, e.Stdout, e.Stderr)
}

// HostKeyError means sshpass returned exit code 6 (host key verification
// failed) while host-key checking is enabled: the remote fingerprint must
// be pre-trusted by the caller before a password-authenticated connection
// can proceed.
type HostKeyError struct {
	Host string
}

func (e *HostKeyError) Error() string {
	return fmt.Sprintf("host key for %s is not pre-trusted and HostKeyChecking is enabled", e.Host)
}

// wrapConnectionFailure formats a *ConnectionFailure around a plumbing
// error using pkg/errors' Wrapf, for the retryable transport-level
// failures this type's own doc comment names: a failed pipe/pty
// allocation, a failed process launch, or a failed stdin write.
func wrapConnectionFailure(err error, format string, args ...interface{}) *ConnectionFailure {
	return &ConnectionFailure{Msg: errors.Wrapf(err, format, args...).Error()}
}

// wrapConfigurationError formats a *ConfigurationError around a setup-time
// error using pkg/errors' Wrapf: malformed ssh_extra_args, an unwritable
// ControlPath directory, and similar failures that happen before any child
// is ever spawned.
func wrapConfigurationError(err error, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Msg: errors.Wrapf(err, format, args...).Error()}
}
