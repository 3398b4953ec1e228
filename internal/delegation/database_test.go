package delegation

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/myzhang1029/pabgp/bgp"
)

func TestParseLineV4(t *testing.T) {
	country, cidr, ok := parseLine("apnic|CN|ipv4|103.37.72.0|1024|20140821|allocated")
	require.True(t, ok)
	require.Equal(t, "apnic:CN", country.String())
	require.False(t, cidr.IsV6)
	require.Equal(t, bgp.NewCidr4(netip.MustParseAddr("103.37.72.0"), 22), cidr.V4)
}

func TestParseLineV6(t *testing.T) {
	country, cidr, ok := parseLine("arin|US|ipv6|2605:4340::|32|20190509|allocated|85009a96f1ed4d3b37a1c73955633b73")
	require.True(t, ok)
	require.Equal(t, "arin:US", country.String())
	require.True(t, cidr.IsV6)
	require.Equal(t, bgp.NewCidr6(netip.MustParseAddr("2605:4340::"), 32), cidr.V6)
}

func TestParseLineEmptyCountryCodeSkipped(t *testing.T) {
	_, _, ok := parseLine("apnic||ipv4|103.37.72.0|1024|20140821|allocated")
	require.False(t, ok)
}

func TestParseLineWildcardCountryCodeSkipped(t *testing.T) {
	_, _, ok := parseLine("apnic|*|ipv4|103.37.72.0|1024|20140821|summary")
	require.False(t, ok)
}

func TestParseLineAllNonPowerOfTwoHostCount(t *testing.T) {
	_, cidrs, ok := parseLineAll("apnic|CN|ipv4|10.0.0.0|768|20140821|allocated")
	require.True(t, ok)
	require.Len(t, cidrs, 2)
	require.Equal(t, bgp.NewCidr4(netip.MustParseAddr("10.0.0.0"), 23), cidrs[0].V4)
	require.Equal(t, bgp.NewCidr4(netip.MustParseAddr("10.0.2.0"), 24), cidrs[1].V4)
}

func TestParseLineCommentSkipped(t *testing.T) {
	_, _, ok := parseLine("# this is a comment")
	require.False(t, ok)
}

func TestCheckHeaderParsesSerial(t *testing.T) {
	serial, ok, err := checkHeader("2.3|apnic|20140821|107344|20140821|19821201|+1000", Apnic)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(20140821), serial)
}

func TestCheckHeaderSkipsComment(t *testing.T) {
	_, ok, err := checkHeader("# comment line", Apnic)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckHeaderRejectsWrongRir(t *testing.T) {
	_, _, err := checkHeader("2.3|arin|20140821|107344|20140821|19821201|+1000", Apnic)
	require.Error(t, err)
	require.IsType(t, ErrUnexpectedRir{}, err)
}

func TestCheckHeaderRejectsUnsupportedVersion(t *testing.T) {
	_, _, err := checkHeader("9.9|apnic|20140821|107344|20140821|19821201|+1000", Apnic)
	require.Error(t, err)
	require.IsType(t, ErrUnsupportedVersion{}, err)
}

func TestDatabaseUpdateFromLineTracksConfiguredCountryOnly(t *testing.T) {
	cn, err := NewCountrySpec(Apnic, "CN")
	require.NoError(t, err)
	db := NewDatabase([]CountrySpec{cn}, true, true)

	db.updateFromLine("apnic|CN|ipv4|103.37.72.0|1024|20140821|allocated")
	db.updateFromLine("apnic|JP|ipv4|133.1.0.0|65536|20140821|allocated")

	v4, _ := db.Prefixes()
	require.Equal(t, []bgp.Cidr4{bgp.NewCidr4(netip.MustParseAddr("103.37.72.0"), 22)}, v4)
}

func TestDatabaseUpdateFromLineRespectsFamilyToggle(t *testing.T) {
	us, err := NewCountrySpec(Arin, "US")
	require.NoError(t, err)
	db := NewDatabase([]CountrySpec{us}, false, true)

	db.updateFromLine("arin|US|ipv4|192.0.2.0|256|20140821|allocated")
	db.updateFromLine("arin|US|ipv6|2001:db8::|32|20140821|allocated")

	v4, v6 := db.Prefixes()
	require.Empty(t, v4)
	require.Len(t, v6, 1)
}
