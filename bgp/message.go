package bgp

import (
	"encoding/binary"
	"net/netip"
)

// Open is a parsed OPEN message (RFC 4271 4.2).
type Open struct {
	Version   uint8
	Asn       uint16
	HoldTime  uint16
	BgpId     netip.Addr
	OptParams OptionalParameters
}

func openFromBytes(src []byte) (Open, error) {
	if len(src) < 9 {
		return Open{}, InternalLengthError{What: "OPEN body", Cmp: CmpLess}
	}
	o := Open{
		Version:  src[0],
		Asn:      binary.BigEndian.Uint16(src[1:3]),
		HoldTime: binary.BigEndian.Uint16(src[3:5]),
		BgpId:    netip.AddrFrom4([4]byte(src[5:9])),
	}
	params, err := OptionalParametersFromBytes(src[9:])
	if err != nil {
		return Open{}, err
	}
	if len(src) > 10+int(src[9]) {
		return Open{}, InternalLengthError{What: "message", Cmp: CmpGreater}
	}
	o.OptParams = params
	return o, nil
}

func (o Open) toBytes() []byte {
	out := make([]byte, 9)
	out[0] = o.Version
	binary.BigEndian.PutUint16(out[1:3], o.Asn)
	binary.BigEndian.PutUint16(out[3:5], o.HoldTime)
	id := o.BgpId.As4()
	copy(out[5:9], id[:])
	out = append(out, o.OptParams.ToBytes()...)
	return out
}

// Update is a parsed UPDATE message (RFC 4271 4.3).
type Update struct {
	Withdrawn      Routes
	PathAttributes PathAttributes
	Nlri           Routes
}

func updateFromBytes(src []byte) (Update, error) {
	if len(src) < 2 {
		return Update{}, InternalLengthError{What: "UPDATE withdrawn length", Cmp: CmpLess}
	}
	wdrLen := int(binary.BigEndian.Uint16(src[0:2]))
	src = src[2:]
	if len(src) < wdrLen {
		return Update{}, InternalLengthError{What: "UPDATE withdrawn routes", Cmp: CmpLess}
	}
	withdrawn, err := RoutesFromBytes(src[:wdrLen])
	if err != nil {
		return Update{}, err
	}
	src = src[wdrLen:]

	if len(src) < 2 {
		return Update{}, InternalLengthError{What: "UPDATE path attributes length", Cmp: CmpLess}
	}
	tpaLen := int(binary.BigEndian.Uint16(src[0:2]))
	src = src[2:]
	if len(src) < tpaLen {
		return Update{}, InternalLengthError{What: "UPDATE path attributes", Cmp: CmpLess}
	}
	attrs, err := PathAttributesFromBytes(src[:tpaLen])
	if err != nil {
		return Update{}, err
	}
	src = src[tpaLen:]

	nlri, err := RoutesFromBytes(src)
	if err != nil {
		return Update{}, err
	}

	return Update{Withdrawn: withdrawn, PathAttributes: attrs, Nlri: nlri}, nil
}

func (u Update) toBytes() []byte {
	wdr := u.Withdrawn.ToBytes()
	attrs := u.PathAttributes.ToBytes()
	nlri := u.Nlri.ToBytes()

	out := make([]byte, 0, 4+len(wdr)+len(attrs)+len(nlri))
	var wdrLen [2]byte
	binary.BigEndian.PutUint16(wdrLen[:], uint16(len(wdr)))
	out = append(out, wdrLen[:]...)
	out = append(out, wdr...)

	var tpaLen [2]byte
	binary.BigEndian.PutUint16(tpaLen[:], uint16(len(attrs)))
	out = append(out, tpaLen[:]...)
	out = append(out, attrs...)

	out = append(out, nlri...)
	return out
}

// Notification is a parsed NOTIFICATION message (RFC 4271 4.5).
type Notification struct {
	ErrorCode    uint8
	ErrorSubcode uint8
	Data         []byte
}

func notificationFromBytes(src []byte) (Notification, error) {
	if len(src) < 2 {
		return Notification{}, InternalLengthError{What: "NOTIFICATION body", Cmp: CmpLess}
	}
	return Notification{
		ErrorCode:    src[0],
		ErrorSubcode: src[1],
		Data:         append([]byte(nil), src[2:]...),
	}, nil
}

func (n Notification) toBytes() []byte {
	out := make([]byte, 2, 2+len(n.Data))
	out[0] = n.ErrorCode
	out[1] = n.ErrorSubcode
	out = append(out, n.Data...)
	return out
}

// Message is a decoded BGP message; Type selects which typed field is
// meaningful. Keepalive carries no body.
type Message struct {
	Type         uint8
	Open         Open
	Update       Update
	Notification Notification
}

func OpenMessage(o Open) Message                 { return Message{Type: MOpen, Open: o} }
func UpdateMessage(u Update) Message             { return Message{Type: MUpdate, Update: u} }
func NotificationMessage(n Notification) Message { return Message{Type: MNotification, Notification: n} }
func KeepaliveMessage() Message                  { return Message{Type: MKeepalive} }

// EncodeMessage frames m with the 16-byte marker, length and type header.
func EncodeMessage(m Message) []byte {
	var body []byte
	switch m.Type {
	case MOpen:
		body = m.Open.toBytes()
	case MUpdate:
		body = m.Update.toBytes()
	case MNotification:
		body = m.Notification.toBytes()
	case MKeepalive:
		body = nil
	}

	out := make([]byte, HeaderLen, HeaderLen+len(body))
	copy(out[0:16], Marker[:])
	binary.BigEndian.PutUint16(out[16:18], uint16(HeaderLen+len(body)))
	out[18] = m.Type
	out = append(out, body...)
	return out
}

// DecodeMessage attempts to decode one message from the front of buf.
// consumed is only meaningful when ok is true. ok is false (with err nil)
// when buf does not yet hold a complete message.
func DecodeMessage(buf []byte) (msg Message, consumed int, ok bool, err error) {
	if len(buf) < HeaderLen {
		return Message{}, 0, false, nil
	}
	for i := 0; i < 16; i++ {
		if buf[i] != 0xff {
			return Message{}, 0, false, MarkerError{}
		}
	}
	length := int(binary.BigEndian.Uint16(buf[16:18]))
	if length < HeaderLen || length > MaxMessageLen {
		return Message{}, 0, false, InternalLengthError{What: "message", Cmp: CmpGreater}
	}
	if len(buf) < length {
		return Message{}, 0, false, nil
	}
	typ := buf[18]
	payload := buf[HeaderLen:length]

	switch typ {
	case MOpen:
		o, err := openFromBytes(payload)
		if err != nil {
			return Message{}, 0, false, err
		}
		return OpenMessage(o), length, true, nil
	case MUpdate:
		u, err := updateFromBytes(payload)
		if err != nil {
			return Message{}, 0, false, err
		}
		return UpdateMessage(u), length, true, nil
	case MNotification:
		n, err := notificationFromBytes(payload)
		if err != nil {
			return Message{}, 0, false, err
		}
		return NotificationMessage(n), length, true, nil
	case MKeepalive:
		if len(payload) != 0 {
			return Message{}, 0, false, InternalLengthError{What: "KEEPALIVE body", Cmp: CmpGreater}
		}
		return KeepaliveMessage(), length, true, nil
	default:
		return Message{}, 0, false, MessageTypeError{Type: typ}
	}
}
