package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/golang/glog"
)

// Handler processes one inbound wire event for an open connection.
type Handler interface {
	Event() Event
	Handle(ctx context.Context, s *Server, c *Client, data json.RawMessage) error
}

type Dispatcher struct {
	handlers map[Event]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[Event]Handler)}
}

func (d *Dispatcher) Register(h Handler) { d.handlers[h.Event()] = h }

func (d *Dispatcher) Dispatch(ctx context.Context, s *Server, c *Client, f *Frame) error {
	h := d.GetHandler(f.Event)
	if h == nil {
		return fmt.Errorf("no handler for event=%s", f.Event)
	}
	return h.Handle(ctx, s, c, f.Data)
}

func (d *Dispatcher) GetHandler(event Event) Handler {
	h, ok := d.handlers[event]
	if !ok {
		glog.Infof("no handler for event=%s", event)
		return nil
	}
	return h
}
