//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/errclass/unix.go
//

package errclass

import (
	"errors"

	"golang.org/x/sys/unix"
)

const (
	errEADDRNOTAVAIL   = uintptr(unix.EADDRNOTAVAIL)
	errEADDRINUSE      = uintptr(unix.EADDRINUSE)
	errECONNABORTED    = uintptr(unix.ECONNABORTED)
	errECONNREFUSED    = uintptr(unix.ECONNREFUSED)
	errECONNRESET      = uintptr(unix.ECONNRESET)
	errEHOSTUNREACH    = uintptr(unix.EHOSTUNREACH)
	errEINVAL          = uintptr(unix.EINVAL)
	errEINTR           = uintptr(unix.EINTR)
	errENETDOWN        = uintptr(unix.ENETDOWN)
	errENETUNREACH     = uintptr(unix.ENETUNREACH)
	errENOBUFS         = uintptr(unix.ENOBUFS)
	errENOTCONN        = uintptr(unix.ENOTCONN)
	errEPROTONOSUPPORT = uintptr(unix.EPROTONOSUPPORT)
	errETIMEDOUT       = uintptr(unix.ETIMEDOUT)
)

// syscallErrno extracts the raw errno value from err, if it wraps one.
func syscallErrno(err error) (uintptr, bool) {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return uintptr(errno), true
	}
	return 0, false
}
