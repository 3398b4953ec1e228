package bgp

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpdateBuilderMpBgpAnnounce(t *testing.T) {
	updates, err := NewUpdateBuilder(true).
		AddV4([]Cidr4{{Addr: netip.MustParseAddr("192.0.2.0"), Len: 24}}).
		SetOrigin(OriginIgp).
		SetAsPath(AsSequence, []uint32{65001}).
		SetNextHop(MpNextHop{Single: netip.MustParseAddr("2001:db8::1")}).
		Build()
	require.NoError(t, err)
	require.Len(t, updates, 1)

	encoded := EncodeMessage(UpdateMessage(updates[0]))
	require.LessOrEqual(t, len(encoded), MaxMessageLen)

	msg, _, ok, err := DecodeMessage(encoded)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, msg.Update.Withdrawn)
	require.Empty(t, msg.Update.Nlri)
}

func TestUpdateBuilderPlainBgp4NextHop(t *testing.T) {
	updates, err := NewUpdateBuilder(false).
		AddV4([]Cidr4{{Addr: netip.MustParseAddr("192.0.2.0"), Len: 24}}).
		SetOrigin(OriginIgp).
		SetAsPath(AsSequence, []uint32{65001}).
		SetNextHop(MpNextHop{Single: netip.MustParseAddr("198.51.100.1")}).
		Build()
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.Len(t, updates[0].Nlri, 1)

	var sawNextHop bool
	for _, attr := range updates[0].PathAttributes {
		if attr.Type == AttrNextHop {
			sawNextHop = true
			require.Equal(t, netip.MustParseAddr("198.51.100.1"), attr.NextHop)
		}
	}
	require.True(t, sawNextHop)
}

func TestUpdateBuilderNoMpBgpWithV6NextHopFails(t *testing.T) {
	_, err := NewUpdateBuilder(false).
		AddV4([]Cidr4{{Addr: netip.MustParseAddr("192.0.2.0"), Len: 24}}).
		SetNextHop(MpNextHop{Single: netip.MustParseAddr("2001:db8::1")}).
		Build()
	require.ErrorIs(t, err, NoMpBgpError{})
}

func TestUpdateBuilderV6RoutesWithoutNextHopFails(t *testing.T) {
	_, err := NewUpdateBuilder(true).
		AddV6([]Cidr6{{Addr: netip.MustParseAddr("2001:db8::"), Len: 32}}).
		Build()
	require.ErrorIs(t, err, NoNextHopError{})
}

func TestUpdateBuilderWithdrawal(t *testing.T) {
	updates, err := NewUpdateBuilder(true).
		WithdrawV4([]Cidr4{{Addr: netip.MustParseAddr("203.0.113.0"), Len: 24}}).
		Build()
	require.NoError(t, err)
	require.Len(t, updates, 1)

	var sawUnreach bool
	for _, attr := range updates[0].PathAttributes {
		if attr.Type == AttrMpUnreachNlri {
			sawUnreach = true
			require.Len(t, attr.MpUnreachNlri.Withdrawn, 1)
		}
	}
	require.True(t, sawUnreach)
}

func TestUpdateBuilderSplitsLargeRouteSet(t *testing.T) {
	b := NewUpdateBuilder(true).
		SetOrigin(OriginIgp).
		SetAsPath(AsSequence, []uint32{65001}).
		SetNextHop(MpNextHop{Single: netip.MustParseAddr("2001:db8::1")})

	var routes []Cidr4
	base := netip.MustParseAddr("10.0.0.0").As4()
	// Each /32 route encodes to 5 bytes (bgp/route.go); the MP-BGP reach
	// budget here is 4037 bytes (MaxMessageLen minus header, attribute, and
	// next-hop overhead), so >807 routes are needed to force a second chunk.
	for i := 0; i < 900; i++ {
		a := base
		a[1] = byte(i >> 8)
		a[2] = byte(i)
		routes = append(routes, Cidr4{Addr: netip.AddrFrom4(a), Len: 32})
	}
	updates, err := b.AddV4(routes).Build()
	require.NoError(t, err)
	require.Greater(t, len(updates), 1)

	var total int
	for _, u := range updates {
		encoded := EncodeMessage(UpdateMessage(u))
		require.LessOrEqual(t, len(encoded), MaxMessageLen)
		for _, attr := range u.PathAttributes {
			if attr.Type == AttrMpReachNlri {
				total += len(attr.MpReachNlri.Nlri)
			}
		}
	}
	require.Equal(t, len(routes), total)
}
