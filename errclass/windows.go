//go:build windows

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/errclass/windows.go
//

package errclass

import (
	"errors"

	"golang.org/x/sys/windows"
)

const (
	errEADDRNOTAVAIL   = uintptr(windows.WSAEADDRNOTAVAIL)
	errEADDRINUSE      = uintptr(windows.WSAEADDRINUSE)
	errECONNABORTED    = uintptr(windows.WSAECONNABORTED)
	errECONNREFUSED    = uintptr(windows.WSAECONNREFUSED)
	errECONNRESET      = uintptr(windows.WSAECONNRESET)
	errEHOSTUNREACH    = uintptr(windows.WSAEHOSTUNREACH)
	errEINVAL          = uintptr(windows.WSAEINVAL)
	errEINTR           = uintptr(windows.WSAEINTR)
	errENETDOWN        = uintptr(windows.WSAENETDOWN)
	errENETUNREACH     = uintptr(windows.WSAENETUNREACH)
	errENOBUFS         = uintptr(windows.WSAENOBUFS)
	errENOTCONN        = uintptr(windows.WSAENOTCONN)
	errEPROTONOSUPPORT = uintptr(windows.WSAEPROTONOSUPPORT)
	errETIMEDOUT       = uintptr(windows.WSAETIMEDOUT)
)

// syscallErrno extracts the raw errno value from err, if it wraps one.
func syscallErrno(err error) (uintptr, bool) {
	var errno windows.Errno
	if errors.As(err, &errno) {
		return uintptr(errno), true
	}
	return 0, false
}
