package notification

import (
	"sync"

	"github.com/osa030/mediasync/internal/domain/message"
)

// DefaultPublishQueueSize is the number of messages a Publisher buffers.
const DefaultPublishQueueSize = 256

// Publisher broadcasts messages through a Manager in the order they were
// published. Publish does not wait for subscribers; one goroutine stamps
// and sends each message in turn.
type Publisher struct {
	manager *Manager
	queue   chan *message.Message

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewPublisher creates a publisher and starts its sender goroutine.
func NewPublisher(manager *Manager, queueSize int) *Publisher {
	if queueSize < 1 {
		queueSize = DefaultPublishQueueSize
	}
	p := &Publisher{
		manager: manager,
		queue:   make(chan *message.Message, queueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Broadcast queues msg. It blocks only while the queue is full and drops
// msg once the publisher is closed.
func (p *Publisher) Broadcast(msg *message.Message) {
	select {
	case <-p.stop:
		return
	default:
	}

	select {
	case p.queue <- msg:
	case <-p.stop:
	}
}

// Close sends what is already queued, then stops the sender.
func (p *Publisher) Close() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	<-p.done
}

func (p *Publisher) run() {
	defer close(p.done)

	for {
		select {
		case msg := <-p.queue:
			p.manager.Broadcast(msg)
		case <-p.stop:
			for {
				select {
				case msg := <-p.queue:
					p.manager.Broadcast(msg)
				default:
					return
				}
			}
		}
	}
}
