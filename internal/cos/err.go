// Package cos provides common low-level types and utilities shared
// across the federator.
package cos

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"sync"
	"syscall"

	"github.com/eidaws/federator/internal/nlog"
)

type (
	ErrNotFound struct {
		what string
	}
	// Errs accumulates distinct errors up to a bound: used where a task
	// fans out to many children and the caller wants "what went wrong"
	// without one failure masking the rest.
	Errs struct {
		errs []error
		mu   sync.Mutex
	}
)

const maxErrs = 8

func NewErrNotFound(format string, a ...any) *ErrNotFound {
	return &ErrNotFound{fmt.Sprintf(format, a...)}
}

func (e *ErrNotFound) Error() string { return e.what + " does not exist" }

func IsErrNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}

func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
	}
}

func (e *Errs) Cnt() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs)
}

// JoinErr folds the accumulated errors into one via errors.Join.
func (e *Errs) JoinErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errs) == 0 {
		return nil
	}
	return errors.Join(e.errs...)
}

//
// transport-error classifiers, used by the download task's retry loop
//

func IsErrConnectionRefused(err error) bool { return errors.Is(err, syscall.ECONNREFUSED) }
func IsErrConnectionReset(err error) bool   { return errors.Is(err, syscall.ECONNRESET) }
func IsErrBrokenPipe(err error) bool        { return errors.Is(err, syscall.EPIPE) }

func IsRetriableConnErr(err error) bool {
	return IsErrConnectionRefused(err) || IsErrConnectionReset(err) || IsErrBrokenPipe(err) || IsErrClientURLTimeout(err)
}

func isErrDNSLookup(err error) bool {
	var e *net.DNSError
	return errors.As(err, &e)
}

// IsUnreachable reports transport-level conditions that should be treated
// like the endpoint never answered (eligible for retry, distinct from a
// terminal 4xx).
func IsUnreachable(err error) bool {
	return IsErrConnectionRefused(err) ||
		isErrDNSLookup(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		IsEOF(err)
}

func IsEOF(err error) bool {
	return err != nil && (errors.Is(err, os.ErrClosed) || err.Error() == "EOF")
}

func IsErrClientURLTimeout(err error) bool {
	var uerr *url.Error
	return errors.As(err, &uerr) && uerr.Timeout()
}

//
// fatal startup errors
//

func ExitLogf(f string, a ...any) {
	msg := fmt.Sprintf("FATAL ERROR: "+f, a...)
	nlog.Errorln(msg)
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
