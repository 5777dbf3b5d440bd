package types

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

type PostFn = func(msg Message)

type MessageHandler interface {
	Run(ctx context.Context, wg *sync.WaitGroup, post PostFn)
	Receive(message Message)
}

type MessageBus struct {
	bus       chan Message
	receivers []MessageHandler
}

func NewMessageBus(bus chan Message, receivers ...MessageHandler) *MessageBus {
	return &MessageBus{bus, receivers}
}

// Post puts a message on the bus. It blocks while the bus is full.
func (mb *MessageBus) Post(msg Message) {
	busLen := len(mb.bus)
	busCapacity := cap(mb.bus)
	if busLen > busCapacity/2 {
		log.Warnf("Bus capacity over 50%% [ %d / %d ]", busLen, busCapacity)
	}
	mb.bus <- msg
}

func (mb *MessageBus) Run(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	defer wg.Done()

	for _, x := range mb.receivers {
		go x.Run(ctx, wg, mb.Post)
	}

	for {
		select {
		case <-ctx.Done():
			mb.drain()
			return
		case msg := <-mb.bus:
			mb.deliver(msg)
		}
	}
}

// drain delivers what was posted before shutdown
func (mb *MessageBus) drain() {
	for {
		select {
		case msg := <-mb.bus:
			mb.deliver(msg)
		default:
			return
		}
	}
}

func (mb *MessageBus) deliver(msg Message) {
	for _, x := range mb.receivers {
		x.Receive(msg)
	}
}
