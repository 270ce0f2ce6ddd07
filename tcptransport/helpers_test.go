// SPDX-License-Identifier: GPL-3.0-or-later

package tcptransport

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// reservePorts asks the OS for n free loopback ports, one per node, the
// way the package's own Config.Listen defaults to net.ListenConfig in
// production. Each listener is closed immediately after its address is
// read so Transport.Connect can rebind it.
func reservePorts(t *testing.T, n int) []string {
	t.Helper()
	addrs := make([]string, n)
	for i := range n {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addrs[i] = l.Addr().String()
		require.NoError(t, l.Close())
	}
	return addrs
}
