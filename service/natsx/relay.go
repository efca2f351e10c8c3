package natsx

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"OpsFlow/logger"
)

const subjectBroadcast = "opsflow.gateway.broadcast"

// Sink receives frames relayed from other gateway nodes.
type Sink interface {
	DeliverRelayed(scope, target string, frame []byte)
}

// envelope is the cross-node wire record. Origin carries the sending
// gateway id so a node can skip its own publications.
type envelope struct {
	Origin string          `json:"origin"`
	Scope  string          `json:"scope"` // global|room|user
	Target string          `json:"target,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// Relay fans gateway broadcasts across nodes over a single NATS
// subject. It implements chat.Relay.
type Relay struct {
	nc        *nats.Conn
	gatewayID string
	sub       *nats.Subscription
}

func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warnf("[natsx] disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("[natsx] reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "nats connect")
	}
	return nc, nil
}

func NewRelay(nc *nats.Conn, gatewayID string) *Relay {
	return &Relay{nc: nc, gatewayID: gatewayID}
}

// Start subscribes and feeds foreign frames into the sink.
func (r *Relay) Start(sink Sink) error {
	sub, err := r.nc.Subscribe(subjectBroadcast, func(m *nats.Msg) {
		var env envelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			logger.Warnf("[natsx] bad envelope: %v", err)
			return
		}
		if env.Origin == r.gatewayID {
			return
		}
		sink.DeliverRelayed(env.Scope, env.Target, env.Frame)
	})
	if err != nil {
		return errors.Wrap(err, "nats subscribe")
	}
	r.sub = sub
	return nil
}

func (r *Relay) Stop() {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
}

func (r *Relay) publish(scope, target string, frame []byte) error {
	data, err := json.Marshal(envelope{
		Origin: r.gatewayID,
		Scope:  scope,
		Target: target,
		Frame:  frame,
	})
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}
	return errors.Wrap(r.nc.Publish(subjectBroadcast, data), "nats publish")
}

func (r *Relay) PublishGlobal(frame []byte) error { return r.publish("global", "", frame) }

func (r *Relay) PublishRoom(roomID string, frame []byte) error {
	return r.publish("room", roomID, frame)
}

func (r *Relay) PublishUser(userID string, frame []byte) error {
	return r.publish("user", userID, frame)
}
