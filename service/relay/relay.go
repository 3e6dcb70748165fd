package relay

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"IMSync/logger"
	decode "IMSync/tools/decode"
)

const (
	subjectRoomPrefix = "im.room."
	subjectUserPrefix = "im.user."
	subjectBroadcast  = "im.broadcast"
)

// Envelope wraps one marshaled frame with its origin so a gateway never
// re-delivers its own publication. Frame is the frame's JSON text verbatim;
// the relay never looks inside it.
type Envelope struct {
	Origin string `json:"origin"`
	Target string `json:"target"`
	Frame  string `json:"frame"`
}

// Handler delivers relayed frames to local connections only. Implemented by
// the gateway's broadcaster.
type Handler interface {
	DeliverRoom(conversationID string, frame []byte)
	DeliverUser(userID string, frame []byte)
	DeliverAll(frame []byte)
}

type Conf struct {
	URL       string
	GatewayID string
	Name      string // client name shown in nats monitoring
}

// Relay fans frames out across gateways over core NATS subjects. Delivery is
// at-most-once per connected peer; there is no stream and no replay, a
// reconnecting client resyncs instead.
type Relay struct {
	nc   *nats.Conn
	gwID string
	subs []*nats.Subscription
}

func Connect(conf Conf) (*Relay, error) {
	opts := []nats.Option{
		nats.Name(conf.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500 * time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warnf("[relay] disconnected err=%v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("[relay] reconnected url=%s", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(conf.URL, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "nats connect")
	}
	return &Relay{nc: nc, gwID: conf.GatewayID}, nil
}

func (r *Relay) PublishRoom(conversationID string, frame []byte) {
	r.publish(subjectRoomPrefix+conversationID, conversationID, frame)
}

func (r *Relay) PublishUser(userID string, frame []byte) {
	r.publish(subjectUserPrefix+userID, userID, frame)
}

func (r *Relay) PublishAll(frame []byte) {
	r.publish(subjectBroadcast, "", frame)
}

func (r *Relay) publish(subject, target string, frame []byte) {
	data, err := json.Marshal(Envelope{Origin: r.gwID, Target: target, Frame: string(frame)})
	if err != nil {
		logger.Errorf("[relay] marshal envelope subject=%s err=%v", subject, err)
		return
	}
	if err := r.nc.Publish(subject, data); err != nil {
		logger.Warnf("[relay] publish failed subject=%s err=%v", subject, err)
	}
}

// Subscribe attaches the inbound side. Envelopes originating from this
// gateway are skipped; everything else is handed to the handler for local
// delivery.
func (r *Relay) Subscribe(h Handler) error {
	sub := func(subject string, deliver func(env *Envelope)) error {
		s, err := r.nc.Subscribe(subject, func(m *nats.Msg) {
			env, err := decodeEnvelope(m.Data)
			if err != nil {
				logger.Warnf("[relay] bad envelope subject=%s err=%v", m.Subject, err)
				return
			}
			if env.Origin == r.gwID {
				return
			}
			deliver(env)
		})
		if err != nil {
			return errors.Wrapf(err, "subscribe %s", subject)
		}
		r.subs = append(r.subs, s)
		return nil
	}

	if err := sub(subjectRoomPrefix+">", func(env *Envelope) {
		h.DeliverRoom(env.Target, []byte(env.Frame))
	}); err != nil {
		return err
	}
	if err := sub(subjectUserPrefix+">", func(env *Envelope) {
		h.DeliverUser(env.Target, []byte(env.Frame))
	}); err != nil {
		return err
	}
	return sub(subjectBroadcast, func(env *Envelope) {
		h.DeliverAll([]byte(env.Frame))
	})
}

func (r *Relay) Close() {
	for _, s := range r.subs {
		_ = s.Unsubscribe()
	}
	if err := r.nc.Drain(); err != nil {
		r.nc.Close()
	}
}

func decodeEnvelope(data []byte) (*Envelope, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return decode.Map[Envelope](m)
}
