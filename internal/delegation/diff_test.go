package delegation

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/myzhang1029/pabgp/bgp"
)

func seedDatabase(t *testing.T, country CountrySpec, v4 []bgp.Cidr4) *Database {
	t.Helper()
	db := NewDatabase([]CountrySpec{country}, true, true)
	db.ipv4ByCountry[country] = append([]bgp.Cidr4(nil), v4...)
	for _, c := range v4 {
		db.ipv4Index.Insert(cidr4ToPrefix(c), country)
	}
	return db
}

func TestComputeDiffDetectsAddedAndWithdrawn(t *testing.T) {
	cn, err := NewCountrySpec(Apnic, "CN")
	require.NoError(t, err)

	kept := bgp.NewCidr4(netip.MustParseAddr("103.37.72.0"), 22)
	withdrawn := bgp.NewCidr4(netip.MustParseAddr("203.0.113.0"), 24)
	added := bgp.NewCidr4(netip.MustParseAddr("198.51.100.0"), 24)

	oldDB := seedDatabase(t, cn, []bgp.Cidr4{kept, withdrawn})
	newDB := seedDatabase(t, cn, []bgp.Cidr4{kept, added})

	diff := ComputeDiff(oldDB, newDB, map[RirName]bool{Apnic: true})

	v4Added, _ := diff.Added()
	v4Withdrawn, _ := diff.Withdrawn()
	require.ElementsMatch(t, []bgp.Cidr4{added}, v4Added)
	require.ElementsMatch(t, []bgp.Cidr4{withdrawn}, v4Withdrawn)
}

func TestComputeDiffSkipsRirNotInUpdatedSet(t *testing.T) {
	cn, err := NewCountrySpec(Apnic, "CN")
	require.NoError(t, err)

	oldDB := seedDatabase(t, cn, nil)
	newDB := seedDatabase(t, cn, []bgp.Cidr4{bgp.NewCidr4(netip.MustParseAddr("198.51.100.0"), 24)})

	diff := ComputeDiff(oldDB, newDB, map[RirName]bool{})
	require.True(t, diff.IsEmpty())
}

func TestDatabaseDiffApplyToMergesIntoMaster(t *testing.T) {
	cn, err := NewCountrySpec(Apnic, "CN")
	require.NoError(t, err)

	kept := bgp.NewCidr4(netip.MustParseAddr("103.37.72.0"), 22)
	withdrawn := bgp.NewCidr4(netip.MustParseAddr("203.0.113.0"), 24)
	added := bgp.NewCidr4(netip.MustParseAddr("198.51.100.0"), 24)

	master := seedDatabase(t, cn, []bgp.Cidr4{kept, withdrawn})

	diff := DatabaseDiff{
		newIPv4:       map[CountrySpec][]bgp.Cidr4{cn: {added}},
		withdrawnIPv4: map[CountrySpec][]bgp.Cidr4{cn: {withdrawn}},
		newIPv6:       map[CountrySpec][]bgp.Cidr6{},
		withdrawnIPv6: map[CountrySpec][]bgp.Cidr6{},
	}
	diff.ApplyTo(master)

	v4, _ := master.Prefixes()
	require.ElementsMatch(t, []bgp.Cidr4{kept, added}, v4)
}
