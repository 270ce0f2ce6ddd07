// SPDX-License-Identifier: GPL-3.0-or-later

// Package tcptransport implements the point-to-point [erdos.Transport]
// family named in spec §4.1: plain TCP sockets for both the control and
// data lane, with optional TLS. It is one of the two concrete transport
// families the node orchestrator treats uniformly through [erdos.Transport];
// see [rendezvoustransport] for the discovery-based family.
package tcptransport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/gabrik/erdos"
)

// Dialer abstracts the [*net.Dialer] behavior.
//
// By making [Transport] depend on an abstract implementation we allow for
// unit testing and for using alternative dialers.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ListenConfig abstracts [net.ListenConfig] so tests can substitute a
// fake listener factory.
type ListenConfig interface {
	Listen(ctx context.Context, network, address string) (net.Listener, error)
}

type netListenConfig struct{}

func (netListenConfig) Listen(ctx context.Context, network, address string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, network, address)
}

// Config holds the fields a [Transport] needs beyond the addresses
// [Transport.Connect] receives from the node core. All fields are safe to
// modify after construction but before the first call to Connect.
type Config struct {
	// Dialer is the [Dialer] to use.
	//
	// Set by [NewConfig] to [&net.Dialer{}].
	Dialer Dialer

	// Listen is the [ListenConfig] to use.
	//
	// Set by [NewConfig] to the standard library's [net.ListenConfig].
	Listen ListenConfig

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [erdos.DefaultErrClassifier].
	ErrClassifier erdos.ErrClassifier

	// Logger is the [erdos.SLogger] to use.
	//
	// Set by [NewConfig] to [erdos.DefaultSLogger].
	Logger erdos.SLogger

	// TimeNow is the function to get the current time (configurable for
	// testing).
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time

	// TLSConfig, if non-nil, enables TLS on both lanes: the dialing side
	// of every pipe performs a client handshake, the accepting side a
	// server handshake, both using this *tls.Config. Leave nil for
	// plaintext TCP, which is the default and is sufficient for the
	// same-host/same-process tests spec §8 describes.
	TLSConfig *tls.Config
}

// NewConfig returns a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Dialer:        &net.Dialer{},
		Listen:        netListenConfig{},
		ErrClassifier: erdos.DefaultErrClassifier,
		Logger:        erdos.DefaultSLogger(),
		TimeNow:       time.Now,
	}
}
