package bgp

import (
	"context"
	"net/netip"

	"github.com/sirupsen/logrus"
)

// state is the session's position in the FSM (SPEC_FULL.md §4.H). Unlike
// the teacher's active/dialing Session, this speaker never dials: a state
// machine instance is handed an already-accepted connection and starts at
// Idle awaiting the peer's OPEN.
type state int

const (
	Idle state = iota
	Connect
	OpenSent
	OpenConfirm
	Established
)

func (s state) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Connect:
		return "Connect"
	case OpenSent:
		return "OpenSent"
	case OpenConfirm:
		return "OpenConfirm"
	case Established:
		return "Established"
	default:
		return "Unknown"
	}
}

// Config holds the parameters a Session needs from the daemon: identity
// and next hop.
type Config struct {
	LocalAS  uint32
	LocalID  netip.Addr
	NextHop  netip.Addr
}

// DiffSource is subscribed to once, at session start, and must only
// deliver diffs posted after Snapshot was taken (SPEC_FULL.md §4.I
// "resubscribe").
type DiffSource interface {
	Recv(ctx context.Context) (Diff, error)
}

// Session runs the FSM for one accepted peer connection to completion.
// Established is an event loop; any other return is terminal.
type Session struct {
	cfg  Config
	conn *Conn
	diffs DiffSource
	snap Snapshot
	log  *logrus.Entry

	peerHoldTime uint16
	peerCaps     Capabilities
	enableMpBgp  bool
}

func NewSession(cfg Config, conn *Conn, snap Snapshot, diffs DiffSource, log *logrus.Entry) *Session {
	return &Session{cfg: cfg, conn: conn, snap: snap, diffs: diffs, log: log, enableMpBgp: true}
}

// localAsn truncates LocalAS to 16 bits, using AS_TRANS when it overflows
// (SPEC_FULL.md §4.H).
func (s *Session) localAsn() uint16 {
	if s.cfg.LocalAS > 0xffff {
		return AsTrans
	}
	return uint16(s.cfg.LocalAS)
}

func (s *Session) ourOpen(holdTime uint16) Open {
	b := NewCapabilitiesBuilder().
		MultiProtocol(AfiIPv4, SafiUnicast).
		MultiProtocol(AfiIPv6, SafiUnicast).
		ExtendedNextHop(AfiIPv4, SafiUnicast, AfiIPv6)
	if s.cfg.LocalAS > 0xffff {
		b.FourOctetAsNumber(s.cfg.LocalAS)
	}
	return Open{
		Version:   4,
		Asn:       s.localAsn(),
		HoldTime:  holdTime,
		BgpId:     s.cfg.LocalID,
		OptParams: OptionalParameters{Capabilities: b.Build()},
	}
}

// negotiatedHoldTime avoids this speaker ever needing to send keepalives:
// RFC 4271 mandates keepalives at >= 1/3 hold time, so a peer whose
// proposal exceeds ours will always keepalive first.
func negotiatedHoldTime(peerHoldTime uint16) uint16 {
	const ours = 180
	if peerHoldTime < ours {
		return peerHoldTime
	}
	return ours
}

func interpretPeerCapabilities(caps Capabilities) (enableMpBgp bool) {
	for _, c := range caps {
		if c.Code == CapMultiProtocol {
			if c.MultiProtocol.Afi == AfiIPv4 || c.MultiProtocol.Afi == AfiIPv6 {
				if c.MultiProtocol.Safi == SafiUnicast {
					enableMpBgp = true
				}
			}
		}
	}
	return enableMpBgp
}

// nextHopAfi is the address family of the configured next hop.
func nextHopAfi(nextHop netip.Addr) Afi {
	if nextHop.Is4() {
		return AfiIPv4
	}
	return AfiIPv6
}

// hasExtendedNextHopFor reports whether caps advertises an ExtendedNextHop
// (RFC 8950) triple whose NextHopAfi matches family, meaning the peer is
// prepared to accept NLRI of some AFI carried over a next hop of this
// family.
func hasExtendedNextHopFor(caps Capabilities, family Afi) bool {
	for _, c := range caps {
		if c.Code != CapExtendedNextHop {
			continue
		}
		for _, v := range c.ExtendedNextHop {
			if v.NextHopAfi == family {
				return true
			}
		}
	}
	return false
}

// Serve runs the FSM to completion. It always returns a non-nil error
// describing why the session ended (matching SPEC_FULL.md §7: every exit
// from Established is an error from the event loop's point of view, even a
// clean EOF).
func (s *Session) Serve(ctx context.Context) error {
	defer s.conn.Close()

	st := Idle
	events := s.conn.Events()

	// Idle: await the peer's OPEN.
	var peerOpen Open
	select {
	case ev, okCh := <-events:
		if !okCh {
			return UnexpectedMessageError{State: st.String(), Message: "EOF"}
		}
		if ev.Err != nil {
			return ev.Err
		}
		if ev.Message.Type != MOpen {
			return UnexpectedMessageError{State: st.String(), Message: msgName(ev.Message.Type)}
		}
		peerOpen = ev.Message.Open
	case <-ctx.Done():
		return ctx.Err()
	}
	st = Connect

	if peerOpen.Version != 4 {
		_ = s.conn.Send(NotificationMessage(Notification{ErrorCode: ErrOpenMessage, ErrorSubcode: ErrOpenUnsupportedVersion}))
		return InvalidVersionError{Got: peerOpen.Version}
	}

	s.peerHoldTime = negotiatedHoldTime(peerOpen.HoldTime)
	s.peerCaps = peerOpen.OptParams.Capabilities
	s.enableMpBgp = interpretPeerCapabilities(s.peerCaps)

	s.log = s.log.WithFields(logrus.Fields{"peer_asn": peerOpen.Asn, "peer_id": peerOpen.BgpId})

	if family := nextHopAfi(s.cfg.NextHop); !hasExtendedNextHopFor(s.peerCaps, family) {
		s.log.WithField("next_hop", s.cfg.NextHop).Warn("bgp: peer did not advertise extended next hop for our next hop's family; proceeding anyway")
	}

	if err := s.conn.Send(OpenMessage(s.ourOpen(s.peerHoldTime))); err != nil {
		return err
	}
	st = OpenSent

	select {
	case ev, okCh := <-events:
		if !okCh {
			return UnexpectedMessageError{State: st.String(), Message: "EOF"}
		}
		if ev.Err != nil {
			return ev.Err
		}
		switch ev.Message.Type {
		case MKeepalive:
			if err := s.conn.Send(KeepaliveMessage()); err != nil {
				return err
			}
		case MNotification:
			n := ev.Message.Notification
			return PeerNotificationError{Code: n.ErrorCode, Subcode: n.ErrorSubcode}
		default:
			return UnexpectedMessageError{State: st.String(), Message: msgName(ev.Message.Type)}
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	st = OpenConfirm
	st = Established
	s.log.WithField("state", st.String()).Info("bgp: session established")

	if err := s.advertiseSnapshot(); err != nil {
		return err
	}

	return s.eventLoop(ctx, events)
}

func msgName(t uint8) string {
	switch t {
	case MOpen:
		return "OPEN"
	case MUpdate:
		return "UPDATE"
	case MNotification:
		return "NOTIFICATION"
	case MKeepalive:
		return "KEEPALIVE"
	default:
		return "unknown"
	}
}

func (s *Session) advertiseSnapshot() error {
	v4, v6 := s.snap.Prefixes()
	updates, err := NewUpdateBuilder(s.enableMpBgp).
		AddV4(v4).
		AddV6(v6).
		SetOrigin(OriginIgp).
		SetAsPath(AsSequence, []uint32{s.cfg.LocalAS}).
		SetNextHop(MpNextHop{Single: s.cfg.NextHop}).
		Build()
	if err != nil {
		return err
	}
	for _, u := range updates {
		if err := s.conn.Send(UpdateMessage(u)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) diffToUpdates(d Diff) ([]Update, error) {
	addedV4, addedV6 := d.Added()
	withdrawnV4, withdrawnV6 := d.Withdrawn()
	return NewUpdateBuilder(s.enableMpBgp).
		AddV4(addedV4).
		AddV6(addedV6).
		WithdrawV4(withdrawnV4).
		WithdrawV6(withdrawnV6).
		SetOrigin(OriginIgp).
		SetAsPath(AsSequence, []uint32{s.cfg.LocalAS}).
		SetNextHop(MpNextHop{Single: s.cfg.NextHop}).
		Build()
}

// diffPump runs on its own goroutine for the lifetime of the event loop,
// turning the blocking DiffSource.Recv into a channel eventLoop can select
// on alongside incoming messages. It exits when ctx is cancelled or Recv
// returns an error; that error is stored in *errOut before out is closed.
func (s *Session) diffPump(ctx context.Context, out chan<- Diff, errOut *error) {
	defer close(out)
	for {
		d, err := s.diffs.Recv(ctx)
		if err != nil {
			*errOut = err
			return
		}
		select {
		case out <- d:
		case <-ctx.Done():
			*errOut = ctx.Err()
			return
		}
	}
}

func (s *Session) eventLoop(ctx context.Context, events <-chan Event) error {
	diffCh := make(chan Diff)
	var diffErr error
	go s.diffPump(ctx, diffCh, &diffErr)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return UnexpectedMessageError{State: Established.String(), Message: "EOF"}
			}
			if ev.Err != nil {
				return ev.Err
			}
			switch ev.Message.Type {
			case MKeepalive:
				if err := s.conn.Send(KeepaliveMessage()); err != nil {
					return err
				}
			case MNotification:
				n := ev.Message.Notification
				return PeerNotificationError{Code: n.ErrorCode, Subcode: n.ErrorSubcode}
			case MUpdate:
				s.log.WithFields(logrus.Fields{
					"withdrawn": len(ev.Message.Update.Withdrawn),
					"nlri":      len(ev.Message.Update.Nlri),
				}).Debug("bgp: received UPDATE (not installed)")
			case MOpen:
				s.log.Warn("bgp: unexpected second OPEN from peer; ignoring")
			}

		case d, ok := <-diffCh:
			if !ok {
				// The diff source failed (e.g. the subscriber lagged or
				// the broadcaster closed): end the session.
				return diffErr
			}
			updates, err := s.diffToUpdates(d)
			if err != nil {
				return err
			}
			for _, u := range updates {
				if err := s.conn.Send(UpdateMessage(u)); err != nil {
					return err
				}
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
