package delegation

import (
	"github.com/myzhang1029/pabgp/bgp"
)

// DatabaseDiff is what changed between two Database snapshots, grouped by
// country. It implements bgp.Diff so a session can translate it directly
// into UPDATE messages.
type DatabaseDiff struct {
	newIPv4       map[CountrySpec][]bgp.Cidr4
	withdrawnIPv4 map[CountrySpec][]bgp.Cidr4
	newIPv6       map[CountrySpec][]bgp.Cidr6
	withdrawnIPv6 map[CountrySpec][]bgp.Cidr6
}

// Added implements bgp.Diff.
func (d DatabaseDiff) Added() (v4 []bgp.Cidr4, v6 []bgp.Cidr6) {
	for _, prefixes := range d.newIPv4 {
		v4 = append(v4, prefixes...)
	}
	for _, prefixes := range d.newIPv6 {
		v6 = append(v6, prefixes...)
	}
	return v4, v6
}

// Withdrawn implements bgp.Diff.
func (d DatabaseDiff) Withdrawn() (v4 []bgp.Cidr4, v6 []bgp.Cidr6) {
	for _, prefixes := range d.withdrawnIPv4 {
		v4 = append(v4, prefixes...)
	}
	for _, prefixes := range d.withdrawnIPv6 {
		v6 = append(v6, prefixes...)
	}
	return v4, v6
}

// IsEmpty reports whether the diff carries no changes at all, in which
// case a refresh cycle can skip publishing it.
func (d DatabaseDiff) IsEmpty() bool {
	return len(d.newIPv4) == 0 && len(d.withdrawnIPv4) == 0 &&
		len(d.newIPv6) == 0 && len(d.withdrawnIPv6) == 0
}

// ApplyTo merges the diff's changes into db: new prefixes are appended,
// withdrawn prefixes are removed. Mirrors the Rust DatabaseDiff::apply_to.
func (d DatabaseDiff) ApplyTo(db *Database) {
	for country, prefixes := range d.newIPv4 {
		db.ipv4ByCountry[country] = append(db.ipv4ByCountry[country], prefixes...)
		for _, c := range prefixes {
			db.ipv4Index.Insert(cidr4ToPrefix(c), country)
		}
	}
	for country, prefixes := range d.withdrawnIPv4 {
		db.ipv4ByCountry[country] = removeCidr4s(db.ipv4ByCountry[country], prefixes)
		for _, c := range prefixes {
			db.ipv4Index.Delete(cidr4ToPrefix(c))
		}
	}
	for country, prefixes := range d.newIPv6 {
		db.ipv6ByCountry[country] = append(db.ipv6ByCountry[country], prefixes...)
		for _, c := range prefixes {
			db.ipv6Index.Insert(cidr6ToPrefix(c), country)
		}
	}
	for country, prefixes := range d.withdrawnIPv6 {
		db.ipv6ByCountry[country] = removeCidr6s(db.ipv6ByCountry[country], prefixes)
		for _, c := range prefixes {
			db.ipv6Index.Delete(cidr6ToPrefix(c))
		}
	}
}

func removeCidr4s(list []bgp.Cidr4, remove []bgp.Cidr4) []bgp.Cidr4 {
	drop := make(map[bgp.Cidr4]bool, len(remove))
	for _, c := range remove {
		drop[c] = true
	}
	out := list[:0]
	for _, c := range list {
		if !drop[c] {
			out = append(out, c)
		}
	}
	return out
}

func removeCidr6s(list []bgp.Cidr6, remove []bgp.Cidr6) []bgp.Cidr6 {
	drop := make(map[bgp.Cidr6]bool, len(remove))
	for _, c := range remove {
		drop[c] = true
	}
	out := list[:0]
	for _, c := range list {
		if !drop[c] {
			out = append(out, c)
		}
	}
	return out
}

// ComputeDiff compares old and new, restricted to the registries named in
// updatedRirs (registries that were not refetched this cycle are assumed
// unchanged and skipped, same as the Rust implementation).
func ComputeDiff(old, new *Database, updatedRirs map[RirName]bool) DatabaseDiff {
	diff := DatabaseDiff{
		newIPv4:       map[CountrySpec][]bgp.Cidr4{},
		withdrawnIPv4: map[CountrySpec][]bgp.Cidr4{},
		newIPv6:       map[CountrySpec][]bgp.Cidr6{},
		withdrawnIPv6: map[CountrySpec][]bgp.Cidr6{},
	}

	for country, prefixes := range new.ipv4ByCountry {
		if !updatedRirs[country.Rir()] {
			continue
		}
		oldPrefixes, hadOld := old.ipv4ByCountry[country]

		var added []bgp.Cidr4
		for _, p := range prefixes {
			if !hadOld || !exactlyContains(old.ipv4Index, cidr4ToPrefix(p), country) {
				added = append(added, p)
			}
		}
		var withdrawn []bgp.Cidr4
		if hadOld {
			newSet := make(map[bgp.Cidr4]bool, len(prefixes))
			for _, p := range prefixes {
				newSet[p] = true
			}
			for _, p := range oldPrefixes {
				if !newSet[p] {
					withdrawn = append(withdrawn, p)
				}
			}
		}
		if len(added) > 0 {
			diff.newIPv4[country] = added
		}
		if len(withdrawn) > 0 {
			diff.withdrawnIPv4[country] = withdrawn
		}
	}

	for country, prefixes := range new.ipv6ByCountry {
		if !updatedRirs[country.Rir()] {
			continue
		}
		oldPrefixes, hadOld := old.ipv6ByCountry[country]

		var added []bgp.Cidr6
		for _, p := range prefixes {
			if !hadOld || !exactlyContains(old.ipv6Index, cidr6ToPrefix(p), country) {
				added = append(added, p)
			}
		}
		var withdrawn []bgp.Cidr6
		if hadOld {
			newSet := make(map[bgp.Cidr6]bool, len(prefixes))
			for _, p := range prefixes {
				newSet[p] = true
			}
			for _, p := range oldPrefixes {
				if !newSet[p] {
					withdrawn = append(withdrawn, p)
				}
			}
		}
		if len(added) > 0 {
			diff.newIPv6[country] = added
		}
		if len(withdrawn) > 0 {
			diff.withdrawnIPv6[country] = withdrawn
		}
	}

	return diff
}
