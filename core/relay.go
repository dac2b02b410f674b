package core

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/boypt/dlbridge/engine"
	"go.uber.org/zap"
)

// Event is one download notification as it crosses the boundary.
type Event struct {
	Kind engine.DownloadEvent
	GID  string
}

// Subscriber receives relayed events on the relay's executor.
type Subscriber interface {
	OnDownloadEvent(ev Event) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ev Event) error

func (f SubscriberFunc) OnDownloadEvent(ev Event) error {
	return f(ev)
}

// Relay hands engine events to at most one subscriber. Publish never blocks
// on the subscriber; events without a subscriber are dropped.
type Relay struct {
	exec    Executor
	ownExec *SerialExecutor

	sub atomic.Pointer[subscriberRef]
	// held by deliver and SetSubscriber only; Publish never takes it
	deliverMu sync.Mutex

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

type subscriberRef struct {
	Subscriber
}

// NewRelay delivers through exec; nil selects a private SerialExecutor.
func NewRelay(exec Executor) *Relay {
	r := &Relay{exec: exec}
	if exec == nil {
		r.ownExec = NewSerialExecutor()
		r.exec = r.ownExec
	}
	return r
}

// SetSubscriber swaps the subscriber. It waits for a delivery in progress,
// so once it returns the previous subscriber receives nothing more. It must
// not be called from inside OnDownloadEvent.
func (r *Relay) SetSubscriber(sub Subscriber) {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()
	if sub == nil {
		r.sub.Store(nil)
		return
	}
	r.sub.Store(&subscriberRef{sub})
}

func (r *Relay) HasSubscriber() bool {
	return r.sub.Load() != nil
}

// Publish queues ev for the current subscriber. Safe from any goroutine,
// including while a subscriber swap waits for a delivery.
func (r *Relay) Publish(ev Event) {
	if !r.HasSubscriber() {
		r.dropped.Add(1)
		return
	}
	if !r.exec.Post(func() { r.deliver(ev) }) {
		r.dropped.Add(1)
		Logger().Debug("event rejected by executor", zap.Stringer("event", ev.Kind), zap.String("gid", ev.GID))
	}
}

func (r *Relay) deliver(ev Event) {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()
	ref := r.sub.Load()
	if ref == nil {
		r.dropped.Add(1)
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.dropped.Add(1)
			Logger().Debug("subscriber panicked", zap.String("panic", fmt.Sprint(p)), zap.String("gid", ev.GID))
		}
	}()
	if err := ref.OnDownloadEvent(ev); err != nil {
		r.dropped.Add(1)
		Logger().Debug("event delivery failed", zap.Error(err), zap.String("gid", ev.GID))
		return
	}
	r.delivered.Add(1)
}

func (r *Relay) onEngineEvent(_ engine.Session, kind engine.DownloadEvent, gid engine.GID) {
	r.Publish(Event{Kind: kind, GID: gid.Hex()})
}

// Stats reports how many events were delivered and dropped.
func (r *Relay) Stats() (delivered, dropped uint64) {
	return r.delivered.Load(), r.dropped.Load()
}

// Close detaches the subscriber and stops the private executor, if any.
func (r *Relay) Close() {
	r.SetSubscriber(nil)
	if r.ownExec != nil {
		r.ownExec.Stop()
	}
}
