// Package config holds the daemon's validated runtime configuration
// (SPEC_FULL.md §4.L).
package config

import (
	"net/netip"
	"time"

	"github.com/pkg/errors"

	"github.com/myzhang1029/pabgp/internal/delegation"
)

// Config is the fully parsed, validated set of parameters a daemon run
// needs. It is built from CLI flags in cmd/pabgpd but kept independent of
// pflag so it can also be constructed directly by tests.
type Config struct {
	LocalAS uint32
	LocalID netip.Addr
	NextHop netip.Addr

	ListenAddr netip.Addr
	ListenPort uint16

	EnableIPv4 bool
	EnableIPv6 bool

	UpdateInterval time.Duration
	Countries      []delegation.CountrySpec

	DryRun  bool
	Verbose bool
}

// Defaults returns a Config with every field at its documented default.
// LocalAS/LocalID/NextHop/Countries are left unset: callers must fill
// them in (or, for LocalAS/LocalID, rely on DryRun skipping the check in
// Validate).
func Defaults() Config {
	return Config{
		ListenAddr:     netip.IPv6Unspecified(),
		ListenPort:     179,
		EnableIPv4:     true,
		EnableIPv6:     true,
		UpdateInterval: 60 * time.Minute,
	}
}

// Validate checks that the configuration is runnable. local_as and
// local_id may be zero only when DryRun is set, since a dry run never
// opens a BGP session.
func (c Config) Validate() error {
	if !c.DryRun {
		if c.LocalAS == 0 {
			return errors.New("config: local_as is required unless --dry-run is set")
		}
		if !c.LocalID.IsValid() {
			return errors.New("config: local_id is required unless --dry-run is set")
		}
	}
	if len(c.Countries) == 0 {
		return errors.New("config: at least one country is required")
	}
	if !c.EnableIPv4 && !c.EnableIPv6 {
		return errors.New("config: at least one of --enable-ipv4/--enable-ipv6 is required")
	}
	if !c.DryRun && !c.NextHop.IsValid() {
		return errors.New("config: next_hop is required unless --dry-run is set")
	}
	if c.UpdateInterval <= 0 {
		return errors.New("config: update_interval must be positive")
	}
	return nil
}
