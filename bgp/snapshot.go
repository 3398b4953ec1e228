package bgp

// Snapshot is the session-facing view of a delegation database clone
// (SPEC_FULL.md §4.J): the initial route lists to advertise on Established,
// already flattened across countries (ordering across countries is
// unspecified).
type Snapshot interface {
	Prefixes() (v4 []Cidr4, v6 []Cidr6)
}

// Diff is the session-facing view of one delegation database refresh: the
// routes added and withdrawn since the session's snapshot (or since the
// previous diff).
type Diff interface {
	Added() (v4 []Cidr4, v6 []Cidr6)
	Withdrawn() (v4 []Cidr4, v6 []Cidr6)
}
