package bgp

// UpdateBuilder packs added/withdrawn route sets into a sequence of UPDATE
// messages that each fit within MaxMessageLen.
type UpdateBuilder struct {
	withdrawnV4 Routes
	withdrawnV6 Routes
	nlriV4      Routes
	nlriV6      Routes

	hasOrigin bool
	origin    Origin
	asPath    AsPath
	hasNextHop bool
	nextHop    MpNextHop
	otherAttrs PathAttributes

	enableMpBgp bool
}

func NewUpdateBuilder(enableMpBgp bool) *UpdateBuilder {
	return &UpdateBuilder{enableMpBgp: enableMpBgp}
}

func (b *UpdateBuilder) WithdrawV4(routes []Cidr4) *UpdateBuilder {
	b.withdrawnV4 = RoutesFromCidr4s(routes)
	return b
}

func (b *UpdateBuilder) WithdrawV6(routes []Cidr6) *UpdateBuilder {
	b.withdrawnV6 = RoutesFromCidr6s(routes)
	return b
}

func (b *UpdateBuilder) AddV4(routes []Cidr4) *UpdateBuilder {
	b.nlriV4 = RoutesFromCidr4s(routes)
	return b
}

func (b *UpdateBuilder) AddV6(routes []Cidr6) *UpdateBuilder {
	b.nlriV6 = RoutesFromCidr6s(routes)
	return b
}

func (b *UpdateBuilder) SetOrigin(o Origin) *UpdateBuilder {
	b.hasOrigin = true
	b.origin = o
	return b
}

func (b *UpdateBuilder) SetAsPath(typ AsSegmentType, asns []uint32) *UpdateBuilder {
	as4 := false
	for _, asn := range asns {
		if asn > 0xffff {
			as4 = true
			break
		}
	}
	b.asPath = append(b.asPath, AsSegment{Type: typ, Asns: asns, As4: as4})
	return b
}

func (b *UpdateBuilder) SetNextHop(nh MpNextHop) *UpdateBuilder {
	b.hasNextHop = true
	b.nextHop = nh
	return b
}

func (b *UpdateBuilder) PathAttribute(attr PathAttribute) *UpdateBuilder {
	b.otherAttrs = append(b.otherAttrs, attr)
	return b
}

// checkNextHop validates that the requested next hop is representable
// given enableMpBgp. The NEXT_HOP path attribute itself is appended later,
// in Build, once per chunked UPDATE rather than here.
func (b *UpdateBuilder) checkNextHop() error {
	if b.hasNextHop {
		if b.enableMpBgp {
			return nil
		}
		if b.nextHop.Single.Is4() && !b.nextHop.HasLinkLocal {
			return nil
		}
		return NoMpBgpError{}
	}
	if len(b.nlriV4) > 0 || len(b.nlriV6) > 0 || len(b.withdrawnV6) > 0 {
		return NoNextHopError{}
	}
	return nil
}

func makeMpUnreachNlri(routes Routes, afi Afi) PathAttribute {
	return PathAttribute{
		Flags: OptionalNonTransitiveExtended,
		Type:  AttrMpUnreachNlri,
		MpUnreachNlri: MpUnreachNlri{
			Afi:       afi,
			Safi:      SafiUnicast,
			Withdrawn: routes,
		},
	}
}

func makeMpReachNlri(routes Routes, afi Afi, nextHop MpNextHop) PathAttribute {
	return PathAttribute{
		Flags: OptionalNonTransitiveExtended,
		Type:  AttrMpReachNlri,
		MpReachNlri: MpReachNlri{
			Afi:     afi,
			Safi:    SafiUnicast,
			NextHop: nextHop,
			Nlri:    routes,
		},
	}
}

func cloneAttrs(attrs PathAttributes) PathAttributes {
	out := make(PathAttributes, len(attrs))
	copy(out, attrs)
	return out
}

// forEachChunk walks routes in the reversed split-boundary order (mirrors
// the Rust Vec::split_off peel-from-the-tail idiom) and invokes fn with
// each chunk.
func forEachChunk(routes Routes, allowedSize int, fn func(chunk Routes)) {
	splits := SplitRoutesToAllowedSizeRev(routes, allowedSize)
	leftover := routes
	for _, end := range splits {
		chunk := leftover[end:]
		leftover = leftover[:end]
		fn(chunk)
	}
}

func makeMpUnreachUpdates(routes Routes, afi Afi, allowedSize int, common PathAttributes, updates *[]Update) {
	forEachChunk(routes, allowedSize, func(chunk Routes) {
		attrs := cloneAttrs(common)
		attrs = append(attrs, makeMpUnreachNlri(chunk, afi))
		*updates = append(*updates, Update{PathAttributes: attrs})
	})
}

func makeMpReachUpdates(routes Routes, afi Afi, allowedSize int, common PathAttributes, nextHop MpNextHop, updates *[]Update) {
	forEachChunk(routes, allowedSize, func(chunk Routes) {
		attrs := cloneAttrs(common)
		attrs = append(attrs, makeMpReachNlri(chunk, afi, nextHop))
		*updates = append(*updates, Update{PathAttributes: attrs})
	})
}

// Build produces the ordered list of UPDATE messages for this builder's
// queued routes. Within one call, withdrawals precede announcements for
// each family, and IPv4 precedes IPv6.
func (b *UpdateBuilder) Build() ([]Update, error) {
	if err := b.checkNextHop(); err != nil {
		return nil, err
	}

	small := cloneAttrs(b.otherAttrs)
	if b.hasOrigin {
		small = append(small, PathAttribute{Flags: WellKnownComplete, Type: AttrOrigin, Origin: b.origin})
	}
	small = append(small, PathAttribute{Flags: WellKnownComplete, Type: AttrAsPath, AsPath: b.asPath})

	var updates []Update

	if b.enableMpBgp {
		// MP_UNREACH_NLRI: 4-byte extended attribute header + AFI(2) + SAFI(1).
		remaining := MaxMessageLen - 19 - 4 - 4 - 3 - small.EncodedLen()
		makeMpUnreachUpdates(b.withdrawnV4, AfiIPv4, remaining, small, &updates)
		makeMpUnreachUpdates(b.withdrawnV6, AfiIPv6, remaining, small, &updates)

		if b.hasNextHop {
			// MP_REACH_NLRI: 4-byte extended attribute header + AFI(2) +
			// SAFI(1) + next-hop length(1) + next hop + reserved(1).
			remaining := MaxMessageLen - 19 - 4 - 4 - 5 - b.nextHop.encodedLen() - small.EncodedLen()
			makeMpReachUpdates(b.nlriV4, AfiIPv4, remaining, small, b.nextHop, &updates)
			makeMpReachUpdates(b.nlriV6, AfiIPv6, remaining, small, b.nextHop, &updates)
		}
		return updates, nil
	}

	remaining := MaxMessageLen - 19 - 4 - small.EncodedLen()

	forEachChunk(b.withdrawnV4, remaining, func(chunk Routes) {
		updates = append(updates, Update{Withdrawn: chunk, PathAttributes: cloneAttrs(small)})
	})

	if b.hasNextHop && b.nextHop.Single.Is4() && !b.nextHop.HasLinkLocal {
		remaining -= 4 + 3 // NEXT_HOP path attribute overhead
		small = append(small, PathAttribute{Flags: WellKnownComplete, Type: AttrNextHop, NextHop: b.nextHop.Single})
		forEachChunk(b.nlriV4, remaining, func(chunk Routes) {
			updates = append(updates, Update{Nlri: chunk, PathAttributes: cloneAttrs(small)})
		})
	}

	return updates, nil
}
