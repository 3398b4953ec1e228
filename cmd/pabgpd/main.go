// Command pabgpd is a passive BGP-4 speaker that redistributes
// country-tagged RIR delegation data as BGP UPDATE messages.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/myzhang1029/pabgp/bgp"
	"github.com/myzhang1029/pabgp/internal/broadcast"
	"github.com/myzhang1029/pabgp/internal/config"
	"github.com/myzhang1029/pabgp/internal/delegation"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Error("pabgpd: fatal")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}

	log := logrus.New()
	if cfg.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	entry := logrus.NewEntry(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	master := delegation.NewDatabase(cfg.Countries, cfg.EnableIPv4, cfg.EnableIPv6)
	client := &http.Client{Timeout: 30 * time.Second}
	if _, err := master.UpdateAll(ctx, client, entry); err != nil {
		return errors.Wrap(err, "pabgpd: initial delegation fetch")
	}

	if cfg.DryRun {
		return printDryRunSummary(master)
	}

	diffs := broadcast.NewBroadcaster[delegation.DatabaseDiff](16)
	defer diffs.Close()

	refresher := delegation.NewRefresher(master, cfg.UpdateInterval, diffs, entry.WithField("component", "refresher"))
	go refresher.Run(ctx)

	listenAddr := net.JoinHostPort(cfg.ListenAddr.String(), fmt.Sprintf("%d", cfg.ListenPort))
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return errors.Wrapf(err, "pabgpd: listening on %s", listenAddr)
	}
	entry.WithField("addr", listenAddr).Info("pabgpd: listening")

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	sessCfg := bgp.Config{LocalAS: cfg.LocalAS, LocalID: cfg.LocalID, NextHop: cfg.NextHop}
	acceptLoop(ctx, listener, sessCfg, refresher, entry)
	return nil
}

func acceptLoop(ctx context.Context, listener net.Listener, sessCfg bgp.Config, refresher *delegation.Refresher, log *logrus.Entry) {
	for {
		nc, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("pabgpd: accept failed")
			continue
		}

		peerLog := log.WithField("remote", nc.RemoteAddr().String())
		go func() {
			conn := bgp.NewConn(nc)
			snap := refresher.Snapshot()
			diffSrc := refresher.Subscribe()
			sess := bgp.NewSession(sessCfg, conn, snap, diffSrc, peerLog)
			if err := sess.Serve(ctx); err != nil {
				peerLog.WithError(err).Info("pabgpd: session ended")
			}
		}()
	}
}

func printDryRunSummary(db *delegation.Database) error {
	v4, v6 := db.Prefixes()
	fmt.Printf("parsed %d IPv4 prefixes, %d IPv6 prefixes\n", len(v4), len(v6))
	return nil
}

func parseFlags(args []string) (config.Config, error) {
	cfg := config.Defaults()

	fs := flag.NewFlagSet("pabgpd", flag.ContinueOnError)
	nextHop := fs.StringP("next-hop", "n", "", "next hop address advertised to peers")
	listenAddr := fs.StringP("listen-addr", "l", cfg.ListenAddr.String(), "address to listen on")
	listenPort := fs.Uint16P("listen-port", "p", cfg.ListenPort, "TCP port to listen on")
	enableIPv4 := fs.BoolP("enable-ipv4", "4", cfg.EnableIPv4, "redistribute IPv4 delegations")
	enableIPv6 := fs.BoolP("enable-ipv6", "6", cfg.EnableIPv6, "redistribute IPv6 delegations")
	updateInterval := fs.Uint64P("update-interval", "u", uint64(cfg.UpdateInterval/time.Minute), "delegation refresh interval in minutes")
	verbose := fs.BoolP("verbose", "v", false, "enable debug logging")
	dryRun := fs.BoolP("dry-run", "i", false, "fetch and parse delegations, print a summary, and exit")

	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	positional := fs.Args()
	if len(positional) < 1 {
		if !*dryRun {
			return config.Config{}, errors.New("pabgpd: missing local_as, local_id, and countries")
		}
	}

	cfg.EnableIPv4 = *enableIPv4
	cfg.EnableIPv6 = *enableIPv6
	cfg.UpdateInterval = time.Duration(*updateInterval) * time.Minute
	cfg.Verbose = *verbose
	cfg.DryRun = *dryRun
	cfg.ListenPort = *listenPort

	if *listenAddr != "" {
		addr, err := netip.ParseAddr(*listenAddr)
		if err != nil {
			return config.Config{}, errors.Wrap(err, "pabgpd: --listen-addr")
		}
		cfg.ListenAddr = addr
	}
	if *nextHop != "" {
		addr, err := netip.ParseAddr(*nextHop)
		if err != nil {
			return config.Config{}, errors.Wrap(err, "pabgpd: --next-hop")
		}
		cfg.NextHop = addr
	}

	if len(positional) >= 1 {
		asn, err := parseASN(positional[0])
		if err != nil {
			return config.Config{}, errors.Wrap(err, "pabgpd: local_as")
		}
		cfg.LocalAS = asn
	}
	if len(positional) >= 2 {
		id, err := netip.ParseAddr(positional[1])
		if err != nil {
			return config.Config{}, errors.Wrap(err, "pabgpd: local_id")
		}
		cfg.LocalID = id
	}
	for _, arg := range positionalTail(positional) {
		spec, err := delegation.ParseCountrySpec(arg)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Countries = append(cfg.Countries, spec)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func positionalTail(positional []string) []string {
	if len(positional) <= 2 {
		return nil
	}
	return positional[2:]
}

func parseASN(s string) (uint32, error) {
	var n uint32
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
