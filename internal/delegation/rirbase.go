// Package delegation fetches RIR delegation statistics files and tracks,
// per country, which IP prefixes are currently delegated to it
// (SPEC_FULL.md §4.J, §4.K).
package delegation

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// RirName identifies one of the five Regional Internet Registries that
// publish delegation statistics files.
type RirName int

const (
	Arin RirName = iota
	Ripencc
	Apnic
	Lacnic
	Afrinic
)

func (r RirName) String() string {
	switch r {
	case Arin:
		return "arin"
	case Ripencc:
		return "ripencc"
	case Apnic:
		return "apnic"
	case Lacnic:
		return "lacnic"
	case Afrinic:
		return "afrinic"
	default:
		return "unknown"
	}
}

// ErrUnknownRir means a statistics line or command-line argument named a
// registry this speaker does not recognise.
var ErrUnknownRir = errors.New("delegation: unknown RIR name")

// ParseRirName parses the lowercase registry tag used in delegation
// statistics files and country specs ("arin", "ripencc", "apnic",
// "lacnic", "afrinic").
func ParseRirName(s string) (RirName, error) {
	switch strings.ToLower(s) {
	case "arin":
		return Arin, nil
	case "ripencc":
		return Ripencc, nil
	case "apnic":
		return Apnic, nil
	case "lacnic":
		return Lacnic, nil
	case "afrinic":
		return Afrinic, nil
	default:
		return 0, errors.Wrapf(ErrUnknownRir, "%q", s)
	}
}

// CountrySpec names one country's delegations as tracked by a specific
// RIR: the same country code can appear under more than one registry
// (historical reassignments, disputed allocations), so the pair is the
// unit of identity throughout this package.
type CountrySpec struct {
	rir         RirName
	countryCode [2]byte
}

// NewCountrySpec validates code as a two-letter, non-wildcard country
// code and pairs it with rir.
func NewCountrySpec(rir RirName, code string) (CountrySpec, error) {
	if len(code) != 2 || code == "*" {
		return CountrySpec{}, errors.Errorf("delegation: invalid country code %q", code)
	}
	upper := strings.ToUpper(code)
	return CountrySpec{rir: rir, countryCode: [2]byte{upper[0], upper[1]}}, nil
}

func (c CountrySpec) Rir() RirName { return c.rir }

func (c CountrySpec) CountryCode() string { return string(c.countryCode[:]) }

func (c CountrySpec) String() string {
	return fmt.Sprintf("%s:%s", c.rir, c.CountryCode())
}

// ParseCountrySpec parses the "rir:CC" form used on the command line.
func ParseCountrySpec(s string) (CountrySpec, error) {
	rirPart, ccPart, ok := strings.Cut(s, ":")
	if !ok {
		return CountrySpec{}, errors.Errorf("delegation: invalid country spec %q, want rir:CC", s)
	}
	rir, err := ParseRirName(rirPart)
	if err != nil {
		return CountrySpec{}, err
	}
	return NewCountrySpec(rir, ccPart)
}
