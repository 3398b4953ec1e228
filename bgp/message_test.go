package bgp

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeepaliveRoundTrip(t *testing.T) {
	encoded := EncodeMessage(KeepaliveMessage())
	require.Len(t, encoded, HeaderLen)

	msg, consumed, ok, err := DecodeMessage(encoded)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, HeaderLen, consumed)
	require.Equal(t, uint8(MKeepalive), msg.Type)
}

func TestDecodeMessageIncompleteBuffer(t *testing.T) {
	encoded := EncodeMessage(KeepaliveMessage())
	_, _, ok, err := DecodeMessage(encoded[:10])
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDecodeMessageBadMarker(t *testing.T) {
	encoded := EncodeMessage(KeepaliveMessage())
	encoded[0] = 0
	_, _, _, err := DecodeMessage(encoded)
	require.Error(t, err)
	require.IsType(t, MarkerError{}, err)
}

func TestOpenRoundTripFourOctetAsn(t *testing.T) {
	open := Open{
		Version:  4,
		Asn:      AsTrans,
		HoldTime: 180,
		BgpId:    netip.MustParseAddr("192.0.2.1"),
		OptParams: OptionalParameters{
			Capabilities: Capabilities{
				CapMultiProtocolValue(AfiIPv4, SafiUnicast),
				CapFourOctetAsNumberValue(400000),
			},
		},
	}
	encoded := EncodeMessage(OpenMessage(open))

	msg, consumed, ok, err := DecodeMessage(encoded)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, len(encoded), consumed)
	require.Equal(t, uint8(MOpen), msg.Type)
	require.Equal(t, open.Asn, msg.Open.Asn)
	require.Equal(t, open.BgpId, msg.Open.BgpId)
	require.Len(t, msg.Open.OptParams.Capabilities, 2)
	require.Equal(t, uint32(400000), msg.Open.OptParams.Capabilities[1].FourOctetAsn)
}

func TestUpdateRoundTripMpReachV4OverV6(t *testing.T) {
	update := Update{
		PathAttributes: PathAttributes{
			{Flags: WellKnownComplete, Type: AttrOrigin, Origin: OriginIgp},
			{Flags: WellKnownComplete, Type: AttrAsPath, AsPath: AsPath{{Type: AsSequence, Asns: []uint32{65001}}}},
			{
				Flags: OptionalNonTransitiveExtended,
				Type:  AttrMpReachNlri,
				MpReachNlri: MpReachNlri{
					Afi:     AfiIPv4,
					Safi:    SafiUnicast,
					NextHop: MpNextHop{Single: netip.MustParseAddr("2001:db8::1")},
					Nlri:    RoutesFromCidr4s([]Cidr4{{Addr: netip.MustParseAddr("192.0.2.0"), Len: 24}}),
				},
			},
		},
	}
	encoded := EncodeMessage(UpdateMessage(update))

	msg, _, ok, err := DecodeMessage(encoded)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint8(MUpdate), msg.Type)

	var mp *PathAttribute
	for i := range msg.Update.PathAttributes {
		if msg.Update.PathAttributes[i].Type == AttrMpReachNlri {
			mp = &msg.Update.PathAttributes[i]
		}
	}
	require.NotNil(t, mp)
	require.Equal(t, AfiIPv4, mp.MpReachNlri.Afi)
	require.True(t, mp.MpReachNlri.NextHop.Single.Is6())
	require.Len(t, mp.MpReachNlri.Nlri, 1)
}

func TestUnsupportedPathAttributePreserved(t *testing.T) {
	update := Update{
		PathAttributes: PathAttributes{
			{Flags: FlagOptional | FlagTransitive, Type: 99, Unsupported: []byte{1, 2, 3}},
		},
	}
	encoded := EncodeMessage(UpdateMessage(update))

	msg, _, ok, err := DecodeMessage(encoded)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, msg.Update.PathAttributes, 1)
	require.Equal(t, uint8(99), msg.Update.PathAttributes[0].Type)
	require.Equal(t, []byte{1, 2, 3}, msg.Update.PathAttributes[0].Unsupported)
}
