package connection

import (
	"errors"
	"time"
)

// retryLogf is the logging hook RetryController uses; nil disables logging.
type retryLogf func(format string, v ...interface{})

// execResult is an exit code plus stdout/stderr, the shape an ssh attempt
// resolves to once the child has exited.
type execResult struct {
	exitCode int
	stdout   []byte
	stderr   []byte
}

// runWithRetry wraps attempt with a bounded-retry, capped-exponential-backoff
// policy: remaining_tries = retries + 1, retry on exit code 255 or any
// error except a *ConfigurationError or *AuthError (returned at once),
// pause = min(2^attempt - 1, 30) seconds between attempts, and return
// whichever result or error came last once the budget is exhausted.
func runWithRetry(retries int, logf retryLogf, attempt func() (*execResult, error)) (*execResult, error) {
	log := func(format string, v ...interface{}) {
		if logf != nil {
			logf(format, v...)
		}
	}

	remaining := retries + 1
	if remaining < 1 {
		remaining = 1
	}

	var lastResult *execResult
	var lastErr error

	for try := 0; try < remaining; try++ {
		lastResult, lastErr = attempt()

		if lastErr == nil && lastResult.exitCode != 255 {
			return lastResult, nil
		}
		var cfgErr *ConfigurationError
		var authErr *AuthError
		if errors.As(lastErr, &cfgErr) || errors.As(lastErr, &authErr) {
			return lastResult, lastErr
		}

		left := remaining - try - 1
		if left <= 0 {
			break
		}

		pause := backoffSeconds(try)
		if lastErr != nil {
			log("ssh transport failed (%v), retrying after %d seconds (%d left)", lastErr, pause, left)
		} else {
			log("ssh transport exited 255, retrying after %d seconds (%d left)", pause, left)
		}
		if pause > 0 {
			time.Sleep(time.Duration(pause) * time.Second)
		}
	}

	return lastResult, lastErr
}

// backoffSeconds implements pause = min(2^attempt - 1, 30), attempt
// zero-indexed: 0, 1, 3, 7, 15, 30, 30, ...
func backoffSeconds(attempt int) int {
	if attempt < 0 {
		attempt = 0
	}
	pause := (1 << uint(attempt)) - 1
	if pause > 30 {
		return 30
	}
	return pause
}
