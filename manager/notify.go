package manager

import (
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"

	"github.com/vitwit/walletlink/logger"
	"github.com/vitwit/walletlink/types"
)

// StateChange is delivered to subscribers on every transition.
type StateChange struct {
	Previous types.ConnectionState
	Current  types.ConnectionState
	At       time.Time
}

// notifier delivers state changes in transition order from a single
// dispatcher goroutine, so subscribers never run on the goroutine that caused
// the transition.
//
// Every subscriber gets its own bus topic. EventBus identifies handlers by code
// pointer, and closures built from the same literal share one. The bus is only
// touched by the dispatcher, between deliveries: Publish holds the bus lock
// while handlers run, so a handler that subscribes or unsubscribes must not
// reach the bus itself.
type notifier struct {
	bus    evbus.Bus
	logger logger.Logger

	mu       sync.Mutex
	topics   []string
	handlers map[string]func(StateChange)
	pending  []busOp
	queue    []delivery
	closed   bool

	wake chan struct{}
	done chan struct{}
}

// busOp is a subscription change waiting to be applied to the bus.
type busOp struct {
	topic   string
	handler func(StateChange)
	remove  bool
}

func newNotifier(log logger.Logger) *notifier {
	n := &notifier{
		bus:      evbus.New(),
		logger:   log,
		handlers: make(map[string]func(StateChange)),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) subscribe(fn func(StateChange)) (func(), error) {
	topic := "state_changed/" + uuid.NewString()
	handler := func(change StateChange) {
		defer func() {
			if r := recover(); r != nil {
				n.logger.Error("state subscriber panicked", map[string]any{"panic": r})
			}
		}()
		fn(change)
	}

	n.mu.Lock()
	n.topics = append(n.topics, topic)
	n.handlers[topic] = handler
	n.pending = append(n.pending, busOp{topic: topic, handler: handler})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			for i, t := range n.topics {
				if t == topic {
					n.topics = append(n.topics[:i:i], n.topics[i+1:]...)
					break
				}
			}
			delete(n.handlers, topic)
			n.pending = append(n.pending, busOp{topic: topic, handler: handler, remove: true})
		})
	}, nil
}

// delivery is a queued change and the subscribers registered when it happened.
type delivery struct {
	change StateChange
	topics []string
}

// publish queues change for delivery. It never blocks.
func (n *notifier) publish(change StateChange) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, delivery{
		change: change,
		topics: append([]string(nil), n.topics...),
	})
	select {
	case n.wake <- struct{}{}:
	default:
	}
	n.mu.Unlock()
}

func (n *notifier) run() {
	defer close(n.done)
	for range n.wake {
		for {
			n.mu.Lock()
			ops := n.pending
			n.pending = nil
			if len(n.queue) == 0 {
				n.mu.Unlock()
				n.apply(ops)
				break
			}
			d := n.queue[0]
			n.queue = n.queue[1:]
			n.mu.Unlock()

			n.apply(ops)
			for _, topic := range d.topics {
				if n.active(topic) {
					n.bus.Publish(topic, d.change)
				}
			}
		}
	}
}

func (n *notifier) apply(ops []busOp) {
	for _, op := range ops {
		var err error
		if op.remove {
			err = n.bus.Unsubscribe(op.topic, op.handler)
		} else {
			err = n.bus.Subscribe(op.topic, op.handler)
		}
		if err != nil {
			n.logger.Warn("failed to update state subscription", map[string]any{"topic": op.topic, "error": err})
		}
	}
}

// active reports whether topic is still subscribed. A subscriber that left
// after a change was queued does not receive it.
func (n *notifier) active(topic string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.handlers[topic]
	return ok
}

// close delivers what is queued, then stops the dispatcher.
func (n *notifier) close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		<-n.done
		return
	}
	n.closed = true
	close(n.wake)
	n.mu.Unlock()

	<-n.done
}
