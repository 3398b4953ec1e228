package delegation

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/myzhang1029/pabgp/bgp"
	"github.com/myzhang1029/pabgp/internal/broadcast"
)

// Refresher owns the master Database and periodically refetches it,
// computing and broadcasting a DatabaseDiff each cycle (SPEC_FULL.md
// §4.K). It is the only goroutine that ever mutates the master database;
// every other goroutine only ever sees a Clone() or a broadcast Diff.
type Refresher struct {
	master   *Database
	interval time.Duration
	client   *http.Client
	out      *broadcast.Broadcaster[DatabaseDiff]
	log      *logrus.Entry
}

// NewRefresher wraps an already-populated master database.
func NewRefresher(master *Database, interval time.Duration, out *broadcast.Broadcaster[DatabaseDiff], log *logrus.Entry) *Refresher {
	return &Refresher{
		master:   master,
		interval: interval,
		client:   &http.Client{Timeout: 30 * time.Second},
		out:      out,
		log:      log,
	}
}

// Snapshot clones the master database for a new session's initial
// advertisement.
func (r *Refresher) Snapshot() *Database { return r.master.Clone() }

// Subscribe registers a new diff subscriber and returns it as a
// bgp.DiffSource. broadcast.Subscriber[DatabaseDiff].Recv returns a
// DatabaseDiff, not the bgp.Diff interface a Session expects, so
// diffSourceAdapter narrows the concrete type at the call site instead.
func (r *Refresher) Subscribe() bgp.DiffSource {
	return diffSourceAdapter{sub: r.out.Subscribe()}
}

type diffSourceAdapter struct {
	sub *broadcast.Subscriber[DatabaseDiff]
}

func (a diffSourceAdapter) Recv(ctx context.Context) (bgp.Diff, error) {
	d, err := a.sub.Recv(ctx)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Run refreshes the master database every interval until ctx is
// cancelled. One failed registry does not block the others or skip the
// cycle; it is logged and the previous data for that registry is kept.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshOnce(ctx)
		}
	}
}

func (r *Refresher) refreshOnce(ctx context.Context) {
	scratch := NewDatabase(r.master.countrySpecs, r.master.enableIPv4, r.master.enableIPv6)
	for rir, serial := range r.master.serialNumbers {
		scratch.serialNumbers[rir] = serial
	}

	updated, err := scratch.UpdateAll(ctx, r.client, r.log)
	if err != nil {
		r.log.WithError(err).Warn("delegation: refresh cycle failed, keeping previous data")
		return
	}
	if len(updated) == 0 {
		r.log.Debug("delegation: refresh cycle found nothing new")
		return
	}

	diff := ComputeDiff(r.master, scratch, updated)
	if diff.IsEmpty() {
		r.log.Debug("delegation: refresh cycle produced no route changes")
		return
	}

	diff.ApplyTo(r.master)
	for rir := range updated {
		r.master.serialNumbers[rir] = scratch.serialNumbers[rir]
	}
	r.log.WithField("rirs", len(updated)).Info("delegation: refresh cycle applied diff")
	r.out.Publish(diff)
}
