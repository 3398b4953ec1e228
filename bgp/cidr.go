package bgp

import (
	"fmt"
	"net/netip"
)

// Cidr4 is an IPv4 prefix.
type Cidr4 struct {
	Addr netip.Addr
	Len  uint8
}

func NewCidr4(addr netip.Addr, length uint8) Cidr4 {
	return Cidr4{Addr: addr, Len: length}
}

func (c Cidr4) String() string { return fmt.Sprintf("%s/%d", c.Addr, c.Len) }

// Cidr6 is an IPv6 prefix.
type Cidr6 struct {
	Addr netip.Addr
	Len  uint8
}

func NewCidr6(addr netip.Addr, length uint8) Cidr6 {
	return Cidr6{Addr: addr, Len: length}
}

func (c Cidr6) String() string { return fmt.Sprintf("%s/%d", c.Addr, c.Len) }

// Cidr is either an IPv4 or an IPv6 prefix.
type Cidr struct {
	V4   Cidr4
	V6   Cidr6
	IsV6 bool
}

func CidrFromV4(c Cidr4) Cidr { return Cidr{V4: c} }
func CidrFromV6(c Cidr6) Cidr { return Cidr{V6: c, IsV6: true} }

func (c Cidr) IntoParts() (netip.Addr, uint8) {
	if c.IsV6 {
		return c.V6.Addr, c.V6.Len
	}
	return c.V4.Addr, c.V4.Len
}

func (c Cidr) String() string {
	if c.IsV6 {
		return c.V6.String()
	}
	return c.V4.String()
}

// NPrefixOctets returns ceil(prefixLen/8), the number of address octets a
// route of this prefix length carries on the wire.
func NPrefixOctets(prefixLen uint8) int {
	if prefixLen&0x07 == 0 {
		return int(prefixLen >> 3)
	}
	return int(prefixLen>>3) + 1
}
