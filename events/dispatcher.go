package events

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/odinbridge/room"
)

// Handler receives every payload of the kind it was registered for.
type Handler func(origin *room.Room, p Payload)

type subscriber struct {
	id uint64
	fn Handler
}

// Dispatcher routes envelopes to per-kind listener sets in registration order.
type Dispatcher struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[Kind][]subscriber
}

// NewDispatcher creates a dispatcher without listeners.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[Kind][]subscriber)}
}

// Subscription removes a listener again.
type Subscription struct {
	d    *Dispatcher
	kind Kind
	id   uint64
}

// Unsubscribe removes the listener. It is safe to call more than once.
func (s Subscription) Unsubscribe() {
	if s.d == nil {
		return
	}
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	subs := s.d.handlers[s.kind]
	for i, sub := range subs {
		if sub.id == s.id {
			s.d.handlers[s.kind] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// On registers fn for every payload of kind.
func (d *Dispatcher) On(kind Kind, fn Handler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.handlers[kind] = append(d.handlers[kind], subscriber{id: d.nextID, fn: fn})
	return Subscription{d: d, kind: kind, id: d.nextID}
}

// Subscribe registers a typed listener for payload type P.
//
//	events.Subscribe(d, func(r *room.Room, e events.MediaAdded) { ... })
func Subscribe[P Payload](d *Dispatcher, fn func(origin *room.Room, p P)) Subscription {
	var zero P
	return d.On(zero.Kind(), func(origin *room.Room, p Payload) {
		if v, ok := p.(P); ok {
			fn(origin, v)
		}
	})
}

// Dispatch delivers env to the listeners of its kind. A malformed envelope
// is logged and reported as ErrMalformedEvent; listener panics are logged
// and do not stop delivery to the remaining listeners.
func (d *Dispatcher) Dispatch(env Envelope) error {
	if env.Payload == nil {
		return malformed(env, "nil payload")
	}
	kind := env.Payload.Kind()
	if !kind.Valid() {
		return malformed(env, fmt.Sprintf("unknown kind %d", uint8(kind)))
	}

	d.mu.RLock()
	subs := append([]subscriber(nil), d.handlers[kind]...)
	d.mu.RUnlock()

	for _, sub := range subs {
		safely("Dispatcher.Dispatch", kind.String(), func() {
			sub.fn(env.Origin, env.Payload)
		})
	}
	return nil
}

func malformed(env Envelope, reason string) error {
	err := fmt.Errorf("%w: %s", ErrMalformedEvent, reason)
	fields := logrus.Fields{
		"function": "Dispatcher.Dispatch",
		"error":    err.Error(),
	}
	if env.Origin != nil {
		fields["room"] = env.Origin.Name()
	}
	logrus.WithFields(fields).Warn("Dropping malformed event")
	return err
}

// safely runs fn and logs a panic instead of propagating it into the tick.
func safely(function, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": function,
				"event":    what,
				"panic":    r,
			}).Error("Event listener panicked")
		}
	}()
	fn()
}
