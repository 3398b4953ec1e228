/*
 * pabgp: a passive BGP-4 speaker for country-tagged delegation redistribution.
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation; either version 2 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License along
 * with this program; if not, write to the Free Software Foundation, Inc.,
 * 51 Franklin Street, Fifth Floor, Boston, MA 02110-1301 USA.
 */

// https://datatracker.ietf.org/doc/html/rfc4271 - A Border Gateway Protocol 4 (BGP-4)
// https://datatracker.ietf.org/doc/html/rfc4760 - Multiprotocol Extensions for BGP-4
// https://datatracker.ietf.org/doc/html/rfc5492 - Capabilities Advertisement with BGP-4
// https://datatracker.ietf.org/doc/html/rfc6793 - BGP Support for Four-octet AS Number Space
// https://datatracker.ietf.org/doc/html/rfc8950 - Advertising IPv4 NLRI with an IPv6 Next Hop

package bgp

// Message type octet values (RFC 4271 4.1).
const (
	MOpen         = 1
	MUpdate       = 2
	MNotification = 3
	MKeepalive    = 4
)

// Marker is the 16-byte all-ones header every BGP message begins with.
var Marker = [16]byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// HeaderLen is the marker+length+type prefix every message carries.
const HeaderLen = 19

// MaxMessageLen is the largest message this speaker will emit or accept;
// Extended Message (RFC 8654) is never negotiated for sending.
const MaxMessageLen = 4096

// AsTrans is the placeholder ASN used in the legacy two-byte OPEN field
// when the real ASN exceeds 16 bits (RFC 6793 7).
const AsTrans uint16 = 23456

// OPEN optional parameter types (RFC 4271 4.2, RFC 5492 4).
const OptionalParamCapabilities = 2

// BGP NOTIFICATION error codes (RFC 4271 4.5).
const (
	ErrMessageHeader    = 1
	ErrOpenMessage      = 2
	ErrUpdateMessage    = 3
	ErrHoldTimerExpired = 4
	ErrFsm              = 5
	ErrCease            = 6
)

// OPEN message error subcodes (RFC 4271 4.5).
const (
	ErrOpenUnsupportedVersion = 1
	ErrOpenBadPeerAs          = 2
	ErrOpenBadBgpId           = 3
)

func htonl(h uint32) [4]byte {
	return [4]byte{byte(h >> 24), byte(h >> 16), byte(h >> 8), byte(h)}
}

func htons(h uint16) [2]byte {
	return [2]byte{byte(h >> 8), byte(h)}
}
