// Package errwrap aggregates the one error-combining concern that doesn't
// belong to any single typed error kind: merging a stdin-write error with a
// later stdin-close error when both occur on the same drain pass.
// Single-error wrapping now produces this transport's own typed error kinds
// directly (see connection.wrapConnectionFailure/wrapConfigurationError)
// rather than a generic wrapped error a caller would have to string-match.
package errwrap

import (
	"github.com/hashicorp/go-multierror"
)

// Append can be used to safely append an error onto an existing one. If you
// pass in a nil error to append, the existing error will be returned
// unchanged. If the existing error is already nil, then the new error will
// be returned unchanged. This makes it easy to use Append as a safe
// `reterr += err`, when you don't know if either is nil or not.
func Append(reterr, err error) error {
	if reterr == nil { // keep it simple, pass it through
		return err // which might even be nil
	}
	if err == nil { // no error, so don't do anything
		return reterr
	}
	// both are real errors
	return multierror.Append(reterr, err)
}
