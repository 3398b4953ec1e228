package delegation

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"github.com/gaissmai/bart"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/myzhang1029/pabgp/bgp"
)

// Registry URLs (APNIC RIR statistics exchange format).
const (
	ArinURL    = "https://ftp.arin.net/pub/stats/arin/delegated-arin-extended-latest"
	RipeURL    = "https://ftp.ripe.net/ripe/stats/delegated-ripencc-latest"
	ApnicURL   = "https://ftp.apnic.net/apnic/stats/apnic/delegated-apnic-latest"
	LacnicURL  = "https://ftp.lacnic.net/pub/stats/lacnic/delegated-lacnic-latest"
	AfrinicURL = "https://ftp.afrinic.net/pub/stats/afrinic/delegated-afrinic-latest"
)

var rirURL = map[RirName]string{
	Arin:    ArinURL,
	Ripencc: RipeURL,
	Apnic:   ApnicURL,
	Lacnic:  LacnicURL,
	Afrinic: AfrinicURL,
}

// SupportedVersions lists the statistics-file format versions this parser
// understands.
var SupportedVersions = []string{"2", "2.3"}

// ErrHTTPStatus means the registry responded with something other than
// 200 OK.
type ErrHTTPStatus struct{ Status int }

func (e ErrHTTPStatus) Error() string { return fmt.Sprintf("delegation: HTTP status %d", e.Status) }

// ErrUnsupportedVersion means the file's declared format version is not
// one this parser understands.
type ErrUnsupportedVersion struct {
	Version string
	Rir     RirName
}

func (e ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("delegation: unsupported statistics version %q from %s", e.Version, e.Rir)
}

// ErrUnexpectedRir means the header line named a different registry than
// the one this URL was fetched for.
type ErrUnexpectedRir struct{ Got, Want RirName }

func (e ErrUnexpectedRir) Error() string {
	return fmt.Sprintf("delegation: got %s statistics, expected %s", e.Got, e.Want)
}

// ErrInvalidHeader means the first non-comment line did not parse as a
// statistics-file header.
type ErrInvalidHeader struct{ Line string }

func (e ErrInvalidHeader) Error() string {
	return fmt.Sprintf("delegation: invalid header line %q", e.Line)
}

// Database is the authoritative set of delegated prefixes for the
// countries this speaker was configured to track.
//
// Per-country prefix lists (ipv4ByCountry/ipv6ByCountry) are the source of
// truth for enumeration and serialization, the same as the Rust
// implementation's HashMap<CountrySpec, Vec<Cidr>>. In addition, each
// address family carries a bart.Table keyed by exact prefix, used only to
// answer "is this exact prefix already present" in O(log n) during diff
// computation, replacing the Rust version's O(n) Vec::contains scan.
type Database struct {
	countrySpecs  []CountrySpec
	serialNumbers map[RirName]uint64
	enableIPv4    bool
	enableIPv6    bool

	ipv4ByCountry map[CountrySpec][]bgp.Cidr4
	ipv6ByCountry map[CountrySpec][]bgp.Cidr6

	ipv4Index *bart.Table[CountrySpec]
	ipv6Index *bart.Table[CountrySpec]
}

// NewDatabase creates an empty database tracking the given countries.
func NewDatabase(countries []CountrySpec, enableIPv4, enableIPv6 bool) *Database {
	return &Database{
		countrySpecs:  append([]CountrySpec(nil), countries...),
		serialNumbers: map[RirName]uint64{},
		enableIPv4:    enableIPv4,
		enableIPv6:    enableIPv6,
		ipv4ByCountry: map[CountrySpec][]bgp.Cidr4{},
		ipv6ByCountry: map[CountrySpec][]bgp.Cidr6{},
		ipv4Index:     new(bart.Table[CountrySpec]),
		ipv6Index:     new(bart.Table[CountrySpec]),
	}
}

// Clone produces an independent copy, as Rust's #[derive(Clone)] does for
// the original Database. Used to take a consistent snapshot before
// publishing it as a session's initial advertisement.
func (d *Database) Clone() *Database {
	out := NewDatabase(d.countrySpecs, d.enableIPv4, d.enableIPv6)
	for rir, serial := range d.serialNumbers {
		out.serialNumbers[rir] = serial
	}
	for country, prefixes := range d.ipv4ByCountry {
		cp := append([]bgp.Cidr4(nil), prefixes...)
		out.ipv4ByCountry[country] = cp
		for _, c := range cp {
			out.ipv4Index.Insert(cidr4ToPrefix(c), country)
		}
	}
	for country, prefixes := range d.ipv6ByCountry {
		cp := append([]bgp.Cidr6(nil), prefixes...)
		out.ipv6ByCountry[country] = cp
		for _, c := range cp {
			out.ipv6Index.Insert(cidr6ToPrefix(c), country)
		}
	}
	return out
}

// needed reports the set of registries that must be fetched to cover all
// configured countries.
func (d *Database) needed() map[RirName]bool {
	out := map[RirName]bool{}
	for _, c := range d.countrySpecs {
		out[c.Rir()] = true
	}
	return out
}

// UpdateAll fetches every registry this database needs and merges their
// statistics in, returning the set of registries that actually changed
// (a registry whose serial number is unchanged since the last fetch is
// skipped).
func (d *Database) UpdateAll(ctx context.Context, client *http.Client, log *logrus.Entry) (map[RirName]bool, error) {
	updated := map[RirName]bool{}
	var firstErr error
	for rir := range d.needed() {
		url := rirURL[rir]
		changed, err := d.updateFromURL(ctx, client, url, rir, log)
		if err != nil {
			log.WithError(err).WithField("rir", rir.String()).Warn("delegation: registry update failed, keeping previous data")
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "delegation: updating %s", rir)
			}
			continue
		}
		if changed {
			updated[rir] = true
		}
	}
	if len(updated) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return updated, nil
}

func (d *Database) updateFromURL(ctx context.Context, client *http.Client, url string, rir RirName, log *logrus.Entry) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, errors.Wrap(err, "delegation: building request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, errors.Wrap(err, "delegation: fetching statistics")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, ErrHTTPStatus{Status: resp.StatusCode}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var serial uint64
	foundHeader := false
	for scanner.Scan() {
		line := scanner.Text()
		s, ok, err := checkHeader(line, rir)
		if err != nil {
			return false, err
		}
		if ok {
			serial = s
			foundHeader = true
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return false, errors.Wrap(err, "delegation: reading statistics body")
	}
	if !foundHeader {
		return false, ErrInvalidHeader{Line: "<missing>"}
	}

	if prev, ok := d.serialNumbers[rir]; ok && prev == serial {
		log.WithField("rir", rir.String()).Info("delegation: already up to date")
		return false, nil
	}
	d.serialNumbers[rir] = serial

	n := 0
	for scanner.Scan() {
		d.updateFromLine(scanner.Text())
		n++
		if n%10000 == 0 {
			log.WithFields(logrus.Fields{"rir": rir.String(), "lines": n}).Info("delegation: processing statistics")
		}
	}
	if err := scanner.Err(); err != nil {
		return false, errors.Wrap(err, "delegation: reading statistics body")
	}
	return true, nil
}

// checkHeader parses the first non-comment line of a statistics file. ok
// is false (err nil) for comment lines, which are not the header.
func checkHeader(line string, expected RirName) (serial uint64, ok bool, err error) {
	if strings.HasPrefix(line, "#") {
		return 0, false, nil
	}
	parts := strings.SplitN(line, "|", 7)
	if len(parts) < 7 {
		return 0, false, ErrInvalidHeader{Line: line}
	}
	version := parts[0]
	rir, perr := ParseRirName(parts[1])
	if perr != nil {
		return 0, false, ErrInvalidHeader{Line: line}
	}
	serial, perr = strconv.ParseUint(parts[2], 10, 64)
	if perr != nil {
		return 0, false, ErrInvalidHeader{Line: line}
	}
	if rir != expected {
		return 0, false, ErrUnexpectedRir{Got: rir, Want: expected}
	}
	supported := false
	for _, v := range SupportedVersions {
		if v == version {
			supported = true
			break
		}
	}
	if !supported {
		return 0, false, ErrUnsupportedVersion{Version: version, Rir: rir}
	}
	return serial, true, nil
}

// parseLine parses one delegation record, returning its first (and
// usually only) CIDR. It returns ok=false for anything that is not a
// usable ipv4/ipv6 record: comments, summary lines, and records with an
// empty or wildcard country code. A non-power-of-two IPv4 host count
// decomposes into more than one CIDR; use parseLineAll to get all of
// them.
func parseLine(line string) (country CountrySpec, cidr bgp.Cidr, ok bool) {
	country, cidrs, ok := parseLineAll(line)
	if !ok || len(cidrs) == 0 {
		return CountrySpec{}, bgp.Cidr{}, false
	}
	return country, cidrs[0], true
}

// parseLineAll is like parseLine but returns every CIDR a record expands
// to (more than one only for a non-power-of-two IPv4 host count).
func parseLineAll(line string) (country CountrySpec, cidrs []bgp.Cidr, ok bool) {
	if strings.HasPrefix(line, "#") {
		return CountrySpec{}, nil, false
	}
	parts := strings.SplitN(line, "|", 6)
	if len(parts) < 6 {
		return CountrySpec{}, nil, false
	}
	rir, err := ParseRirName(parts[0])
	if err != nil {
		return CountrySpec{}, nil, false
	}
	country, err = NewCountrySpec(rir, parts[1])
	if err != nil {
		return CountrySpec{}, nil, false
	}

	switch parts[2] {
	case "ipv4":
		addr, err := netip.ParseAddr(parts[3])
		if err != nil {
			return CountrySpec{}, nil, false
		}
		numHosts, err := strconv.ParseUint(parts[4], 10, 32)
		if err != nil {
			return CountrySpec{}, nil, false
		}
		v4s, err := bgp.FromNumHosts(addr, uint32(numHosts))
		if err != nil {
			return CountrySpec{}, nil, false
		}
		out := make([]bgp.Cidr, 0, len(v4s))
		for _, c := range v4s {
			out = append(out, bgp.CidrFromV4(c))
		}
		return country, out, true
	case "ipv6":
		addr, err := netip.ParseAddr(parts[3])
		if err != nil {
			return CountrySpec{}, nil, false
		}
		prefixLen, err := strconv.ParseUint(parts[4], 10, 8)
		if err != nil {
			return CountrySpec{}, nil, false
		}
		return country, []bgp.Cidr{bgp.CidrFromV6(bgp.Cidr6{Addr: addr, Len: uint8(prefixLen)})}, true
	default:
		return CountrySpec{}, nil, false
	}
}

func (d *Database) updateFromLine(line string) {
	country, cidrs, ok := parseLineAll(line)
	if !ok {
		return
	}
	tracked := false
	for _, c := range d.countrySpecs {
		if c == country {
			tracked = true
			break
		}
	}
	if !tracked {
		return
	}
	for _, cidr := range cidrs {
		if cidr.IsV6 {
			if !d.enableIPv6 {
				continue
			}
			d.ipv6ByCountry[country] = append(d.ipv6ByCountry[country], cidr.V6)
			d.ipv6Index.Insert(cidr6ToPrefix(cidr.V6), country)
		} else {
			if !d.enableIPv4 {
				continue
			}
			d.ipv4ByCountry[country] = append(d.ipv4ByCountry[country], cidr.V4)
			d.ipv4Index.Insert(cidr4ToPrefix(cidr.V4), country)
		}
	}
}

// IntoPrefixes returns the raw country-to-prefix maps, mirroring the Rust
// Database::into_prefixes consuming conversion.
func (d *Database) IntoPrefixes() (map[CountrySpec][]bgp.Cidr4, map[CountrySpec][]bgp.Cidr6) {
	return d.ipv4ByCountry, d.ipv6ByCountry
}

// Prefixes flattens every tracked country's prefixes into the two slices
// a session needs for its initial advertisement. It implements
// bgp.Snapshot.
func (d *Database) Prefixes() (v4 []bgp.Cidr4, v6 []bgp.Cidr6) {
	for _, prefixes := range d.ipv4ByCountry {
		v4 = append(v4, prefixes...)
	}
	for _, prefixes := range d.ipv6ByCountry {
		v6 = append(v6, prefixes...)
	}
	return v4, v6
}

func cidr4ToPrefix(c bgp.Cidr4) netip.Prefix {
	return netip.PrefixFrom(c.Addr, int(c.Len))
}

func cidr6ToPrefix(c bgp.Cidr6) netip.Prefix {
	return netip.PrefixFrom(c.Addr, int(c.Len))
}

// exactlyContains reports whether idx already holds country at exactly
// this prefix (not merely a covering supernet), replacing the Rust
// version's Vec::contains linear scan with an O(log n) trie lookup.
func exactlyContains(idx *bart.Table[CountrySpec], pfx netip.Prefix, country CountrySpec) bool {
	lpm, val, ok := idx.LookupPrefixLPM(pfx)
	return ok && lpm == pfx.Masked() && val == country
}
