package bgp

import (
	"encoding/binary"
)

// Afi is an address family identifier (RFC 4760).
type Afi uint16

const (
	AfiIPv4 Afi = 1
	AfiIPv6 Afi = 2
)

// Safi is a subsequent address family identifier (RFC 4760).
type Safi uint16

const (
	SafiUnicast      Safi = 1
	SafiMulticast    Safi = 2
	SafiMplsLabel    Safi = 4
	SafiVpn          Safi = 128
	SafiVpnMulticast Safi = 129
)

// Capability type codes (RFC 5492, RFC 2858, RFC 2918, RFC 8950, RFC 8654,
// RFC 6793).
const (
	CapMultiProtocol     = 1
	CapRouteRefresh      = 2
	CapExtendedNextHop   = 5
	CapExtendedMessage   = 6
	CapFourOctetAsNumber = 65
)

// MultiProtocol is capability code 1's value field.
type MultiProtocol struct {
	Afi  Afi
	Safi Safi
}

// ExtendedNextHopValue is one (afi, safi, next-hop-afi) triple inside an
// ExtendedNextHop capability (RFC 8950).
type ExtendedNextHopValue struct {
	Afi        Afi
	Safi       Safi
	NextHopAfi Afi
}

// Capability is a single decoded BGP capability TLV. Exactly one of the
// typed fields is meaningful, selected by Code.
type Capability struct {
	Code             uint8
	MultiProtocol    MultiProtocol
	ExtendedNextHop  []ExtendedNextHopValue
	FourOctetAsn     uint32
	UnsupportedBytes []byte
}

func CapMultiProtocolValue(afi Afi, safi Safi) Capability {
	return Capability{Code: CapMultiProtocol, MultiProtocol: MultiProtocol{Afi: afi, Safi: safi}}
}

func CapRouteRefreshValue() Capability { return Capability{Code: CapRouteRefresh} }

func CapExtendedNextHopValue(values []ExtendedNextHopValue) Capability {
	return Capability{Code: CapExtendedNextHop, ExtendedNextHop: values}
}

func CapExtendedMessageValue() Capability { return Capability{Code: CapExtendedMessage} }

func CapFourOctetAsNumberValue(asn uint32) Capability {
	return Capability{Code: CapFourOctetAsNumber, FourOctetAsn: asn}
}

// Capabilities is an ordered list of capability TLVs. Duplicates are
// permitted and preserved in order (RFC 5492: "a BGP speaker MUST be
// prepared to accept such multiple instances").
type Capabilities []Capability

func CapabilitiesFromBytes(src []byte) (Capabilities, error) {
	var caps Capabilities
	for len(src) > 0 {
		if len(src) < 2 {
			return nil, InternalLengthError{What: "capability header", Cmp: CmpLess}
		}
		code := src[0]
		length := int(src[1])
		src = src[2:]
		if len(src) < length {
			return nil, InternalLengthError{What: "capability value", Cmp: CmpLess}
		}
		value := src[:length]
		src = src[length:]

		var cap Capability
		switch code {
		case CapMultiProtocol:
			if len(value) != 4 {
				return nil, InternalLengthError{What: "MultiProtocol capability", Cmp: CmpEqual}
			}
			cap = Capability{
				Code: code,
				MultiProtocol: MultiProtocol{
					Afi:  Afi(binary.BigEndian.Uint16(value[0:2])),
					Safi: Safi(value[3]),
				},
			}
		case CapRouteRefresh:
			cap = Capability{Code: code}
		case CapExtendedNextHop:
			if len(value)%6 != 0 {
				return nil, InternalLengthError{What: "ExtendedNextHop capability", Cmp: CmpEqual}
			}
			var vals []ExtendedNextHopValue
			for i := 0; i < len(value); i += 6 {
				vals = append(vals, ExtendedNextHopValue{
					Afi:        Afi(binary.BigEndian.Uint16(value[i : i+2])),
					Safi:       Safi(binary.BigEndian.Uint16(value[i+2 : i+4])),
					NextHopAfi: Afi(binary.BigEndian.Uint16(value[i+4 : i+6])),
				})
			}
			cap = Capability{Code: code, ExtendedNextHop: vals}
		case CapExtendedMessage:
			cap = Capability{Code: code}
		case CapFourOctetAsNumber:
			if len(value) != 4 {
				return nil, InternalLengthError{What: "FourOctetAsNumber capability", Cmp: CmpEqual}
			}
			cap = Capability{Code: code, FourOctetAsn: binary.BigEndian.Uint32(value)}
		default:
			cap = Capability{Code: code, UnsupportedBytes: append([]byte(nil), value...)}
		}
		caps = append(caps, cap)
	}
	return caps, nil
}

func (c Capability) toBytes() []byte {
	var value []byte
	switch c.Code {
	case CapMultiProtocol:
		value = make([]byte, 4)
		binary.BigEndian.PutUint16(value[0:2], uint16(c.MultiProtocol.Afi))
		value[2] = 0
		value[3] = byte(c.MultiProtocol.Safi)
	case CapRouteRefresh, CapExtendedMessage:
		value = nil
	case CapExtendedNextHop:
		value = make([]byte, 0, 6*len(c.ExtendedNextHop))
		for _, v := range c.ExtendedNextHop {
			var b [6]byte
			binary.BigEndian.PutUint16(b[0:2], uint16(v.Afi))
			binary.BigEndian.PutUint16(b[2:4], uint16(v.Safi))
			binary.BigEndian.PutUint16(b[4:6], uint16(v.NextHopAfi))
			value = append(value, b[:]...)
		}
	case CapFourOctetAsNumber:
		value = make([]byte, 4)
		binary.BigEndian.PutUint32(value, c.FourOctetAsn)
	default:
		value = c.UnsupportedBytes
	}

	out := make([]byte, 2, 2+len(value))
	out[0] = c.Code
	out[1] = byte(len(value))
	out = append(out, value...)
	return out
}

func (c Capabilities) ToBytes() []byte {
	var out []byte
	for _, v := range c {
		out = append(out, v.toBytes()...)
	}
	return out
}

// OptionalParameters is the OPEN message's optional-parameters field: a
// single length byte followed by type/length/value TLVs. Only parameter
// type 2 (Capabilities) is understood.
//
// Every type-2 TLV encountered is merged into one flat Capabilities list,
// and ToBytes always re-emits a single combined TLV. A peer that splits
// its capabilities across more than one type-2 parameter (legal per RFC
// 5492) won't round-trip byte-for-byte, though the decoded capability set
// itself is unaffected.
type OptionalParameters struct {
	Capabilities Capabilities
}

func OptionalParametersFromBytes(src []byte) (OptionalParameters, error) {
	if len(src) < 1 {
		return OptionalParameters{}, InternalLengthError{What: "optional parameters length", Cmp: CmpLess}
	}
	length := int(src[0])
	src = src[1:]
	if len(src) < length {
		return OptionalParameters{}, InternalLengthError{What: "optional parameters", Cmp: CmpLess}
	}
	src = src[:length]

	var out OptionalParameters
	for len(src) > 0 {
		if len(src) < 2 {
			return OptionalParameters{}, InternalLengthError{What: "optional parameter header", Cmp: CmpLess}
		}
		paramType := src[0]
		paramLen := int(src[1])
		src = src[2:]
		if len(src) < paramLen {
			return OptionalParameters{}, InternalLengthError{What: "optional parameter", Cmp: CmpLess}
		}
		value := src[:paramLen]
		src = src[paramLen:]

		if paramType != OptionalParamCapabilities {
			return OptionalParameters{}, InternalTypeError{What: "optional parameter", Got: uint16(paramType)}
		}
		caps, err := CapabilitiesFromBytes(value)
		if err != nil {
			return OptionalParameters{}, err
		}
		out.Capabilities = append(out.Capabilities, caps...)
	}
	return out, nil
}

func (p OptionalParameters) ToBytes() []byte {
	capBytes := p.Capabilities.ToBytes()
	out := make([]byte, 0, 3+len(capBytes))
	out = append(out, byte(len(capBytes)+2))
	out = append(out, OptionalParamCapabilities, byte(len(capBytes)))
	out = append(out, capBytes...)
	return out
}

// CapabilitiesBuilder fluently assembles the capability set advertised in
// our own OPEN message.
type CapabilitiesBuilder struct {
	multiProtocol   []MultiProtocol
	extendedNextHop []ExtendedNextHopValue
	fourOctetAsn    *uint32
	other           []Capability
}

func NewCapabilitiesBuilder() *CapabilitiesBuilder { return &CapabilitiesBuilder{} }

func (b *CapabilitiesBuilder) MultiProtocol(afi Afi, safi Safi) *CapabilitiesBuilder {
	b.multiProtocol = append(b.multiProtocol, MultiProtocol{Afi: afi, Safi: safi})
	return b
}

func (b *CapabilitiesBuilder) ExtendedNextHop(afi Afi, safi Safi, nextHopAfi Afi) *CapabilitiesBuilder {
	b.extendedNextHop = append(b.extendedNextHop, ExtendedNextHopValue{Afi: afi, Safi: safi, NextHopAfi: nextHopAfi})
	return b
}

func (b *CapabilitiesBuilder) FourOctetAsNumber(asn uint32) *CapabilitiesBuilder {
	b.fourOctetAsn = &asn
	return b
}

func (b *CapabilitiesBuilder) Other(cap Capability) *CapabilitiesBuilder {
	b.other = append(b.other, cap)
	return b
}

func (b *CapabilitiesBuilder) Build() Capabilities {
	var out Capabilities
	for _, mp := range b.multiProtocol {
		out = append(out, CapMultiProtocolValue(mp.Afi, mp.Safi))
	}
	if len(b.extendedNextHop) > 0 {
		out = append(out, CapExtendedNextHopValue(b.extendedNextHop))
	}
	if b.fourOctetAsn != nil {
		out = append(out, CapFourOctetAsNumberValue(*b.fourOctetAsn))
	}
	out = append(out, b.other...)
	return out
}
