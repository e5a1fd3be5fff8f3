package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/tildaslashalef/reposync/internal/auth"
	"github.com/tildaslashalef/reposync/internal/remote"
)

// ErrorKind classifies why a reconciliation failed or what it flagged
type ErrorKind string

const (
	ErrorKindCredential       ErrorKind = "credential_unavailable"
	ErrorKindUnreachable      ErrorKind = "remote_unreachable"
	ErrorKindRejected         ErrorKind = "remote_rejected"
	ErrorKindInvalid          ErrorKind = "invalid_entity"
	ErrorKindAmbiguous        ErrorKind = "ambiguous_match"
	ErrorKindPartialChildSync ErrorKind = "partial_child_sync"
)

// Advisory reports kinds that may sit on a successful result
func (k ErrorKind) Advisory() bool {
	return k == ErrorKindAmbiguous || k == ErrorKindPartialChildSync
}

var (
	// ErrCredentialUnavailable aborts a whole batch before any remote call
	ErrCredentialUnavailable = errors.New("credential unavailable")

	// ErrLocalNotFound is returned when a local id is not in the cache
	ErrLocalNotFound = errors.New("local entity not found")

	errInvalidEntity = errors.New("invalid entity")
)

// Classify maps an error from a remote call onto the taxonomy
func Classify(err error) ErrorKind {
	var apiErr *remote.APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, auth.ErrNoToken), errors.Is(err, ErrCredentialUnavailable):
		return ErrorKindCredential
	case errors.Is(err, errInvalidEntity):
		return ErrorKindInvalid
	case errors.As(err, &apiErr):
		return ErrorKindRejected
	default:
		// transport errors, timeouts, cancellations, undecodable bodies
		return ErrorKindUnreachable
	}
}

// describe renders err for ErrorDetail; rejections carry the status class
func describe(err error) string {
	var apiErr *remote.APIError
	switch Classify(err) {
	case ErrorKindRejected:
		if errors.As(err, &apiErr) {
			return fmt.Sprintf("remote rejected (%s): %v", apiErr.StatusClass(), err)
		}
	case ErrorKindUnreachable:
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Sprintf("remote unreachable (timeout): %v", err)
		}
		return fmt.Sprintf("remote unreachable: %v", err)
	case ErrorKindCredential:
		return fmt.Sprintf("credential unavailable: %v", err)
	}
	return err.Error()
}
