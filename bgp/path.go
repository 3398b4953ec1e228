package bgp

import (
	"encoding/binary"
	"net/netip"
)

// Path attribute flag bits (RFC 4271 4.3).
const (
	FlagOptional       uint8 = 0x80
	FlagTransitive     uint8 = 0x40
	FlagPartial        uint8 = 0x20
	FlagExtendedLength uint8 = 0x10
)

// WellKnownComplete is the flag byte used for Origin, AS_PATH and NEXT_HOP:
// well-known, transitive, complete, regular length.
const WellKnownComplete uint8 = FlagTransitive

// OptionalNonTransitiveExtended is the flag byte used for MP_REACH_NLRI and
// MP_UNREACH_NLRI: optional, non-transitive (RFC 4760 3), extended length.
const OptionalNonTransitiveExtended uint8 = FlagOptional | FlagExtendedLength

func isExtendedLength(flags uint8) bool { return flags&FlagExtendedLength != 0 }

// Path attribute type codes (RFC 4271 5, RFC 4760 3, RFC 6793 3).
const (
	AttrOrigin          = 1
	AttrAsPath          = 2
	AttrNextHop         = 3
	AttrMultiExitDisc   = 4
	AttrLocalPref       = 5
	AttrAtomicAggregate = 6
	AttrAggregator      = 7
	AttrMpReachNlri     = 14
	AttrMpUnreachNlri   = 15
	AttrAs4Path         = 17
)

// Origin is the well-known ORIGIN attribute (RFC 4271 5.1.1).
type Origin uint8

const (
	OriginIgp        Origin = 0
	OriginEgp        Origin = 1
	OriginIncomplete Origin = 2
)

// AsSegmentType distinguishes AS_SET from AS_SEQUENCE segments (and their
// confederation counterparts, RFC 5065).
type AsSegmentType uint8

const (
	AsSet            AsSegmentType = 1
	AsSequence       AsSegmentType = 2
	ConfedSequence   AsSegmentType = 3
	ConfedSet        AsSegmentType = 4
)

// AsSegment is one segment of an AS_PATH or AS4_PATH attribute. As4 records
// whether the segment was encoded with four-octet ASNs, so a lossless
// round-trip is possible even though the in-memory ASNs are always uint32.
type AsSegment struct {
	Type AsSegmentType
	Asns []uint32
	As4  bool
}

// AsPath is an ordered list of AS_PATH segments.
type AsPath []AsSegment

func asSegmentFromBytes(src []byte) (AsSegment, int, error) {
	if len(src) < 2 {
		return AsSegment{}, 0, InternalLengthError{What: "AS path segment header", Cmp: CmpLess}
	}
	typ := AsSegmentType(src[0])
	count := int(src[1])
	rest := src[2:]

	if count == 0 {
		return AsSegment{Type: typ}, 2, nil
	}

	remaining := len(rest)
	if remaining%count != 0 {
		return AsSegment{}, 0, InternalLengthError{What: "AS path segment", Cmp: CmpEqual}
	}
	perAsn := remaining / count

	var as4 bool
	switch perAsn {
	case 2:
		as4 = false
	case 4:
		as4 = true
	default:
		return AsSegment{}, 0, InternalLengthError{What: "AS path segment", Cmp: CmpEqual}
	}

	asns := make([]uint32, 0, count)
	for i := 0; i < count; i++ {
		off := i * perAsn
		if as4 {
			asns = append(asns, binary.BigEndian.Uint32(rest[off:off+4]))
		} else {
			asns = append(asns, uint32(binary.BigEndian.Uint16(rest[off:off+2])))
		}
	}

	return AsSegment{Type: typ, Asns: asns, As4: as4}, 2 + count*perAsn, nil
}

func (s AsSegment) toBytes() []byte {
	perAsn := 2
	if s.As4 {
		perAsn = 4
	}
	out := make([]byte, 2, 2+perAsn*len(s.Asns))
	out[0] = byte(s.Type)
	out[1] = byte(len(s.Asns))
	for _, asn := range s.Asns {
		if s.As4 {
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], asn)
			out = append(out, b[:]...)
		} else {
			var b [2]byte
			binary.BigEndian.PutUint16(b[:], uint16(asn))
			out = append(out, b[:]...)
		}
	}
	return out
}

func (s AsSegment) encodedLen() int {
	perAsn := 2
	if s.As4 {
		perAsn = 4
	}
	return 2 + perAsn*len(s.Asns)
}

func asPathFromBytes(src []byte) (AsPath, error) {
	var path AsPath
	for len(src) > 0 {
		seg, n, err := asSegmentFromBytes(src)
		if err != nil {
			return nil, err
		}
		path = append(path, seg)
		src = src[n:]
	}
	return path, nil
}

func (p AsPath) toBytes() []byte {
	var out []byte
	for _, s := range p {
		out = append(out, s.toBytes()...)
	}
	return out
}

func (p AsPath) encodedLen() int {
	n := 0
	for _, s := range p {
		n += s.encodedLen()
	}
	return n
}

// Aggregator is the AGGREGATOR attribute value (RFC 4271 5.1.7): a two-byte
// ASN and the aggregating speaker's IPv4 address.
type Aggregator struct {
	Asn uint16
	Ip  netip.Addr
}

// MpNextHop is the next hop carried inside MP_REACH_NLRI (RFC 4760, RFC 8950).
// Either a single address (4 or 16 bytes) or an IPv6 global+link-local pair
// (32 bytes).
type MpNextHop struct {
	Single    netip.Addr
	HasLinkLocal bool
	LinkLocal netip.Addr
}

func mpNextHopFromBytes(src []byte) (MpNextHop, error) {
	switch len(src) {
	case 4:
		return MpNextHop{Single: netip.AddrFrom4([4]byte(src))}, nil
	case 16:
		return MpNextHop{Single: netip.AddrFrom16([16]byte(src)).Unmap()}, nil
	case 32:
		return MpNextHop{
			Single:       netip.AddrFrom16([16]byte(src[0:16])).Unmap(),
			HasLinkLocal: true,
			LinkLocal:    netip.AddrFrom16([16]byte(src[16:32])).Unmap(),
		}, nil
	default:
		return MpNextHop{}, InternalLengthError{What: "MP next hop", Cmp: CmpEqual}
	}
}

func (n MpNextHop) toBytes() []byte {
	if n.HasLinkLocal {
		g := n.Single.As16()
		l := n.LinkLocal.As16()
		out := make([]byte, 0, 32)
		out = append(out, g[:]...)
		out = append(out, l[:]...)
		return out
	}
	if n.Single.Is4() {
		a := n.Single.As4()
		return append([]byte(nil), a[:]...)
	}
	a := n.Single.As16()
	return append([]byte(nil), a[:]...)
}

func (n MpNextHop) encodedLen() int { return len(n.toBytes()) }

// MpReachNlri is path attribute type 14 (RFC 4760 3).
type MpReachNlri struct {
	Afi     Afi
	Safi    Safi
	NextHop MpNextHop
	Nlri    Routes
}

func mpReachNlriFromBytes(src []byte) (MpReachNlri, error) {
	if len(src) < 4 {
		return MpReachNlri{}, InternalLengthError{What: "MP_REACH_NLRI header", Cmp: CmpLess}
	}
	afi := Afi(binary.BigEndian.Uint16(src[0:2]))
	safi := Safi(src[2])
	nhLen := int(src[3])
	src = src[4:]
	if len(src) < nhLen+1 {
		return MpReachNlri{}, InternalLengthError{What: "MP_REACH_NLRI next hop", Cmp: CmpLess}
	}
	nextHop, err := mpNextHopFromBytes(src[:nhLen])
	if err != nil {
		return MpReachNlri{}, err
	}
	src = src[nhLen:]
	src = src[1:] // reserved
	nlri, err := RoutesFromBytes(src)
	if err != nil {
		return MpReachNlri{}, err
	}
	return MpReachNlri{Afi: afi, Safi: safi, NextHop: nextHop, Nlri: nlri}, nil
}

func (m MpReachNlri) toBytes() []byte {
	nh := m.NextHop.toBytes()
	nlri := m.Nlri.ToBytes()
	out := make([]byte, 0, 4+len(nh)+1+len(nlri))
	var afiB [2]byte
	binary.BigEndian.PutUint16(afiB[:], uint16(m.Afi))
	out = append(out, afiB[:]...)
	out = append(out, byte(m.Safi))
	out = append(out, byte(len(nh)))
	out = append(out, nh...)
	out = append(out, 0) // reserved
	out = append(out, nlri...)
	return out
}

func (m MpReachNlri) encodedLen() int {
	return 4 + m.NextHop.encodedLen() + 1 + m.Nlri.EncodedLen()
}

// MpUnreachNlri is path attribute type 15 (RFC 4760 4).
type MpUnreachNlri struct {
	Afi       Afi
	Safi      Safi
	Withdrawn Routes
}

func mpUnreachNlriFromBytes(src []byte) (MpUnreachNlri, error) {
	if len(src) < 3 {
		return MpUnreachNlri{}, InternalLengthError{What: "MP_UNREACH_NLRI header", Cmp: CmpLess}
	}
	afi := Afi(binary.BigEndian.Uint16(src[0:2]))
	safi := Safi(src[2])
	withdrawn, err := RoutesFromBytes(src[3:])
	if err != nil {
		return MpUnreachNlri{}, err
	}
	return MpUnreachNlri{Afi: afi, Safi: safi, Withdrawn: withdrawn}, nil
}

func (m MpUnreachNlri) toBytes() []byte {
	withdrawn := m.Withdrawn.ToBytes()
	out := make([]byte, 0, 3+len(withdrawn))
	var afiB [2]byte
	binary.BigEndian.PutUint16(afiB[:], uint16(m.Afi))
	out = append(out, afiB[:]...)
	out = append(out, byte(m.Safi))
	out = append(out, withdrawn...)
	return out
}

func (m MpUnreachNlri) encodedLen() int { return 3 + m.Withdrawn.EncodedLen() }

// PathAttribute is a single decoded path attribute. Exactly one of the
// typed fields is meaningful, selected by Type; unknown types carry their
// raw value in Unsupported so round-tripping is lossless.
type PathAttribute struct {
	Flags uint8
	Type  uint8

	Origin          Origin
	AsPath          AsPath
	NextHop         netip.Addr
	MultiExitDisc   uint32
	LocalPref       uint32
	Aggregator      Aggregator
	MpReachNlri     MpReachNlri
	MpUnreachNlri   MpUnreachNlri
	As4Path         AsPath
	Unsupported     []byte
}

func pathAttributeFromBytes(src []byte) (PathAttribute, int, error) {
	if len(src) < 3 {
		return PathAttribute{}, 0, InternalLengthError{What: "path attribute header", Cmp: CmpLess}
	}
	flags := src[0]
	typ := src[1]
	var length int
	var headerLen int
	if isExtendedLength(flags) {
		if len(src) < 4 {
			return PathAttribute{}, 0, InternalLengthError{What: "path attribute extended length", Cmp: CmpLess}
		}
		length = int(binary.BigEndian.Uint16(src[2:4]))
		headerLen = 4
	} else {
		length = int(src[2])
		headerLen = 3
	}
	if len(src) < headerLen+length {
		return PathAttribute{}, 0, InternalLengthError{What: "path attribute value", Cmp: CmpLess}
	}
	value := src[headerLen : headerLen+length]
	total := headerLen + length

	attr := PathAttribute{Flags: flags, Type: typ}
	var err error
	switch typ {
	case AttrOrigin:
		if len(value) != 1 {
			return PathAttribute{}, 0, InternalLengthError{What: "ORIGIN", Cmp: CmpEqual}
		}
		attr.Origin = Origin(value[0])
	case AttrAsPath:
		attr.AsPath, err = asPathFromBytes(value)
	case AttrNextHop:
		if len(value) != 4 {
			return PathAttribute{}, 0, InternalLengthError{What: "NEXT_HOP", Cmp: CmpEqual}
		}
		attr.NextHop = netip.AddrFrom4([4]byte(value))
	case AttrMultiExitDisc:
		if len(value) != 4 {
			return PathAttribute{}, 0, InternalLengthError{What: "MULTI_EXIT_DISC", Cmp: CmpEqual}
		}
		attr.MultiExitDisc = binary.BigEndian.Uint32(value)
	case AttrLocalPref:
		if len(value) != 4 {
			return PathAttribute{}, 0, InternalLengthError{What: "LOCAL_PREF", Cmp: CmpEqual}
		}
		attr.LocalPref = binary.BigEndian.Uint32(value)
	case AttrAtomicAggregate:
		// empty value
	case AttrAggregator:
		if len(value) != 6 {
			return PathAttribute{}, 0, InternalLengthError{What: "AGGREGATOR", Cmp: CmpEqual}
		}
		attr.Aggregator = Aggregator{
			Asn: binary.BigEndian.Uint16(value[0:2]),
			Ip:  netip.AddrFrom4([4]byte(value[2:6])),
		}
	case AttrMpReachNlri:
		attr.MpReachNlri, err = mpReachNlriFromBytes(value)
	case AttrMpUnreachNlri:
		attr.MpUnreachNlri, err = mpUnreachNlriFromBytes(value)
	case AttrAs4Path:
		attr.As4Path, err = asPathFromBytes(value)
	default:
		attr.Unsupported = append([]byte(nil), value...)
	}
	if err != nil {
		return PathAttribute{}, 0, err
	}
	return attr, total, nil
}

func (a PathAttribute) valueBytes() []byte {
	switch a.Type {
	case AttrOrigin:
		return []byte{byte(a.Origin)}
	case AttrAsPath:
		return a.AsPath.toBytes()
	case AttrNextHop:
		b := a.NextHop.As4()
		return append([]byte(nil), b[:]...)
	case AttrMultiExitDisc:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], a.MultiExitDisc)
		return b[:]
	case AttrLocalPref:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], a.LocalPref)
		return b[:]
	case AttrAtomicAggregate:
		return nil
	case AttrAggregator:
		out := make([]byte, 6)
		binary.BigEndian.PutUint16(out[0:2], a.Aggregator.Asn)
		ip := a.Aggregator.Ip.As4()
		copy(out[2:6], ip[:])
		return out
	case AttrMpReachNlri:
		return a.MpReachNlri.toBytes()
	case AttrMpUnreachNlri:
		return a.MpUnreachNlri.toBytes()
	case AttrAs4Path:
		return a.As4Path.toBytes()
	default:
		return a.Unsupported
	}
}

func (a PathAttribute) toBytes() []byte {
	value := a.valueBytes()
	flags := a.Flags
	var out []byte
	if isExtendedLength(flags) {
		out = make([]byte, 4, 4+len(value))
		binary.BigEndian.PutUint16(out[2:4], uint16(len(value)))
	} else {
		out = make([]byte, 3, 3+len(value))
		out[2] = byte(len(value))
	}
	out[0] = flags
	out[1] = a.Type
	out = append(out, value...)
	return out
}

func (a PathAttribute) encodedLen() int {
	headerLen := 3
	if isExtendedLength(a.Flags) {
		headerLen = 4
	}
	return headerLen + len(a.valueBytes())
}

// PathAttributes is an ordered list of path attributes.
type PathAttributes []PathAttribute

func PathAttributesFromBytes(src []byte) (PathAttributes, error) {
	var attrs PathAttributes
	for len(src) > 0 {
		attr, n, err := pathAttributeFromBytes(src)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
		src = src[n:]
	}
	return attrs, nil
}

func (p PathAttributes) ToBytes() []byte {
	var out []byte
	for _, a := range p {
		out = append(out, a.toBytes()...)
	}
	return out
}

func (p PathAttributes) EncodedLen() int {
	n := 0
	for _, a := range p {
		n += a.encodedLen()
	}
	return n
}
