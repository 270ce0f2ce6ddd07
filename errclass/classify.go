//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/errclass/errclass.go
//

// Package errclass classifies I/O errors into a small set of stable string
// tags suitable for structured logging and metrics, independent of the
// operating system that produced the underlying syscall.Errno.
package errclass

import (
	"context"
	"errors"
	"net"
)

// Exported classification tags. These are stable across platforms: the
// same logical condition always yields the same tag, regardless of which
// OS-specific errno produced it.
const (
	EADDRNOTAVAIL   = "EADDRNOTAVAIL"
	EADDRINUSE      = "EADDRINUSE"
	ECONNABORTED    = "ECONNABORTED"
	ECONNREFUSED    = "ECONNREFUSED"
	ECONNRESET      = "ECONNRESET"
	EHOSTUNREACH    = "EHOSTUNREACH"
	EINVAL          = "EINVAL"
	EINTR           = "EINTR"
	ENETDOWN        = "ENETDOWN"
	ENETUNREACH     = "ENETUNREACH"
	ENOBUFS         = "ENOBUFS"
	ENOTCONN        = "ENOTCONN"
	EPROTONOSUPPORT = "EPROTONOSUPPORT"
	ETIMEDOUT       = "ETIMEDOUT"

	// EGENERIC is the tag for any non-nil error that does not match a
	// more specific classification.
	EGENERIC = "EGENERIC"
)

// New classifies err into one of the tags above, returning "" for a nil
// error. It first looks for a wrapped platform errno, then falls back to
// context deadline and [net.Error] timeout checks, and finally EGENERIC.
func New(err error) string {
	if err == nil {
		return ""
	}
	if errno, ok := syscallErrno(err); ok {
		if tag, ok := classifyErrno(errno); ok {
			return tag
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ETIMEDOUT
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ETIMEDOUT
	}
	return EGENERIC
}

func classifyErrno(errno uintptr) (string, bool) {
	switch errno {
	case errEADDRNOTAVAIL:
		return EADDRNOTAVAIL, true
	case errEADDRINUSE:
		return EADDRINUSE, true
	case errECONNABORTED:
		return ECONNABORTED, true
	case errECONNREFUSED:
		return ECONNREFUSED, true
	case errECONNRESET:
		return ECONNRESET, true
	case errEHOSTUNREACH:
		return EHOSTUNREACH, true
	case errEINVAL:
		return EINVAL, true
	case errEINTR:
		return EINTR, true
	case errENETDOWN:
		return ENETDOWN, true
	case errENETUNREACH:
		return ENETUNREACH, true
	case errENOBUFS:
		return ENOBUFS, true
	case errENOTCONN:
		return ENOTCONN, true
	case errEPROTONOSUPPORT:
		return EPROTONOSUPPORT, true
	case errETIMEDOUT:
		return ETIMEDOUT, true
	default:
		return "", false
	}
}
