package bgp

import (
	"encoding/binary"
	"math/bits"
	"net/netip"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// RouteValue is a single compact-encoded route: a prefix length and the
// minimal number of address octets it needs.
type RouteValue struct {
	PrefixLen uint8
	Prefix    []byte
}

func (v RouteValue) encodedLen() int { return 1 + len(v.Prefix) }

// Routes is a route list as it appears on the wire: a concatenation of
// RouteValue entries with no count prefix. The containing field supplies
// the total byte length.
type Routes []RouteValue

// RoutesFromBytes decodes every route in src, consuming it entirely.
func RoutesFromBytes(src []byte) (Routes, error) {
	var routes Routes
	for len(src) > 0 {
		prefixLen := src[0]
		src = src[1:]
		n := NPrefixOctets(prefixLen)
		if len(src) < n {
			return nil, InternalLengthError{What: "route prefix", Cmp: CmpLess}
		}
		prefix := make([]byte, n)
		copy(prefix, src[:n])
		src = src[n:]
		routes = append(routes, RouteValue{PrefixLen: prefixLen, Prefix: prefix})
	}
	return routes, nil
}

func (r Routes) ToBytes() []byte {
	out := make([]byte, 0, r.EncodedLen())
	for _, v := range r {
		out = append(out, v.PrefixLen)
		out = append(out, v.Prefix...)
	}
	return out
}

func (r Routes) EncodedLen() int {
	n := 0
	for _, v := range r {
		n += v.encodedLen()
	}
	return n
}

// RouteFromCidr4 truncates a v4 prefix's address octets to NPrefixOctets(len).
func RouteFromCidr4(c Cidr4) RouteValue {
	a := c.Addr.As4()
	n := NPrefixOctets(c.Len)
	return RouteValue{PrefixLen: c.Len, Prefix: append([]byte(nil), a[:n]...)}
}

// RouteFromCidr6 truncates a v6 prefix's address octets to NPrefixOctets(len).
func RouteFromCidr6(c Cidr6) RouteValue {
	a := c.Addr.As16()
	n := NPrefixOctets(c.Len)
	return RouteValue{PrefixLen: c.Len, Prefix: append([]byte(nil), a[:n]...)}
}

func RoutesFromCidr4s(cidrs []Cidr4) Routes {
	routes := make(Routes, 0, len(cidrs))
	for _, c := range cidrs {
		routes = append(routes, RouteFromCidr4(c))
	}
	return routes
}

func RoutesFromCidr6s(cidrs []Cidr6) Routes {
	routes := make(Routes, 0, len(cidrs))
	for _, c := range cidrs {
		routes = append(routes, RouteFromCidr6(c))
	}
	return routes
}

// FromNumHosts decomposes the half-open address range [start, start+numHosts)
// into the minimal ordered list of CIDR blocks that exactly covers it.
//
// Algorithm: while n>0, take k = floor(log2(n)), emit CIDR(start, 32-k),
// advance start by 2^k, subtract 2^k from n. RIR data is well-aligned in
// practice; a misaligned start is logged but the block is still emitted.
func FromNumHosts(start netip.Addr, numHosts uint32) ([]Cidr4, error) {
	if numHosts == 0 {
		return nil, errors.New("bgp: num_hosts must be positive")
	}
	if !start.Is4() {
		return nil, errors.New("bgp: FromNumHosts requires an IPv4 start address")
	}

	var out []Cidr4
	addr := binary.BigEndian.Uint32(start.AsSlice())
	n := numHosts

	for n > 0 {
		k := bits.Len32(n) - 1 // floor(log2(n))
		blockSize := uint32(1) << uint(k)

		if addr&(blockSize-1) != 0 {
			logrus.WithFields(logrus.Fields{
				"start": start,
				"k":     k,
			}).Warn("bgp: num-hosts block is not aligned to its size; emitting anyway")
		}

		var a4 [4]byte
		binary.BigEndian.PutUint32(a4[:], addr)
		out = append(out, Cidr4{Addr: netip.AddrFrom4(a4), Len: uint8(32 - k)})

		addr += blockSize
		n -= blockSize
	}

	return out, nil
}

// SplitRoutesToAllowedSizeEach returns the forward right-boundaries at which
// routes must be split so that every chunk's encoded length is at most
// allowedSize. Returns nil if even a single route cannot fit.
func SplitRoutesToAllowedSizeEach(routes Routes, allowedSize int) []int {
	length := len(routes)
	if length == 0 {
		return nil
	}

	var splits []int
	start := 0
	toKeepEach := length

	for start < length {
		end := start + toKeepEach
		if end > length {
			end = length
		}
		encLen := Routes(routes[start:end]).EncodedLen()

		for encLen > allowedSize {
			toKeepEach /= 2
			if toKeepEach == 0 {
				return nil
			}
			end = start + toKeepEach
			if end > length {
				end = length
			}
			encLen = Routes(routes[start:end]).EncodedLen()
		}

		splits = append(splits, end)
		start += toKeepEach
	}

	return splits
}

// SplitRoutesToAllowedSizeRev returns left boundaries in reverse order,
// suitable for repeatedly peeling the tail chunk off a route slice via
// re-slicing (mirrors the Rust Vec::split_off idiom).
func SplitRoutesToAllowedSizeRev(routes Routes, allowedSize int) []int {
	forward := SplitRoutesToAllowedSizeEach(routes, allowedSize)
	if len(forward) == 0 {
		return nil
	}
	// Drop the final boundary (== len(routes), redundant for split-off
	// iteration), reverse, then append 0 as the last (leftmost) boundary.
	forward = forward[:len(forward)-1]
	rev := make([]int, 0, len(forward)+1)
	for i := len(forward) - 1; i >= 0; i-- {
		rev = append(rev, forward[i])
	}
	rev = append(rev, 0)
	return rev
}
