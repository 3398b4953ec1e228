package bgp

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromNumHostsPowerOfTwo(t *testing.T) {
	start := netip.MustParseAddr("103.37.72.0")
	cidrs, err := FromNumHosts(start, 1024)
	require.NoError(t, err)
	require.Equal(t, []Cidr4{{Addr: start, Len: 22}}, cidrs)
}

func TestFromNumHostsNonPowerOfTwo(t *testing.T) {
	start := netip.MustParseAddr("10.0.0.0")
	cidrs, err := FromNumHosts(start, 768)
	require.NoError(t, err)
	require.Equal(t, []Cidr4{
		{Addr: netip.MustParseAddr("10.0.0.0"), Len: 23},
		{Addr: netip.MustParseAddr("10.0.2.0"), Len: 24},
	}, cidrs)
}

func TestFromNumHostsZero(t *testing.T) {
	_, err := FromNumHosts(netip.MustParseAddr("10.0.0.0"), 0)
	require.Error(t, err)
}

func TestRoutesRoundTrip(t *testing.T) {
	cidrs := []Cidr4{
		{Addr: netip.MustParseAddr("192.0.2.0"), Len: 24},
		{Addr: netip.MustParseAddr("198.51.100.0"), Len: 22},
	}
	routes := RoutesFromCidr4s(cidrs)
	encoded := routes.ToBytes()
	require.Equal(t, routes.EncodedLen(), len(encoded))

	decoded, err := RoutesFromBytes(encoded)
	require.NoError(t, err)
	require.Equal(t, routes, decoded)
}

func TestSplitRoutesToAllowedSizeRevPeelsWholeList(t *testing.T) {
	var routes Routes
	for i := 0; i < 10; i++ {
		routes = append(routes, RouteValue{PrefixLen: 24, Prefix: []byte{10, 0, byte(i)}})
	}
	// Each route is 4 bytes encoded; allow room for 3 per chunk.
	splits := SplitRoutesToAllowedSizeRev(routes, 12)

	leftover := routes
	var reconstructed Routes
	var chunks []Routes
	for _, end := range splits {
		chunk := leftover[end:]
		leftover = leftover[:end]
		chunks = append(chunks, chunk)
	}
	for i := len(chunks) - 1; i >= 0; i-- {
		reconstructed = append(reconstructed, chunks[i]...)
	}
	require.Equal(t, routes, reconstructed)
}

func TestNPrefixOctets(t *testing.T) {
	require.Equal(t, 0, NPrefixOctets(0))
	require.Equal(t, 1, NPrefixOctets(1))
	require.Equal(t, 1, NPrefixOctets(8))
	require.Equal(t, 2, NPrefixOctets(9))
	require.Equal(t, 4, NPrefixOctets(32))
	require.Equal(t, 16, NPrefixOctets(128))
}
