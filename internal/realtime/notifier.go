package realtime

import (
	"context"
	"sync"
)

// UpdateKind names what changed in a room.
type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdatePresence UpdateKind = "presence"
	UpdateTyping   UpdateKind = "typing"
)

// RoomUpdate tells a subscriber that a room's cached state changed and it
// should re-read the relevant view.
type RoomUpdate struct {
	RoomID string
	Kind   UpdateKind
}

// Notifier fans merge notifications out to per-room subscribers (UI glue,
// devtools). Slow subscribers miss updates rather than stall the reducer.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	stream chan RoomUpdate
}

func NewNotifier() *Notifier {
	return &Notifier{
		subscribers: make(map[string]map[int64]*subscriber),
		bufferSize:  16,
	}
}

// Subscribe registers for one room's updates until the context ends or the
// cleanup function runs.
func (n *Notifier) Subscribe(ctx context.Context, roomID string) (<-chan RoomUpdate, func()) {
	if roomID == "" {
		stream := make(chan RoomUpdate)
		close(stream)
		return stream, func() {}
	}
	sub := &subscriber{
		id:     n.nextSequence(),
		stream: make(chan RoomUpdate, n.bufferSize),
	}
	n.register(roomID, sub)
	cleanup := func() {
		n.unregister(roomID, sub.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

// Publish delivers the update to every subscriber of its room.
func (n *Notifier) Publish(update RoomUpdate) {
	if update.RoomID == "" || update.Kind == "" {
		return
	}
	n.mu.RLock()
	subscribers := n.subscribers[update.RoomID]
	if len(subscribers) == 0 {
		n.mu.RUnlock()
		return
	}
	copies := make([]*subscriber, 0, len(subscribers))
	for _, sub := range subscribers {
		copies = append(copies, sub)
	}
	n.mu.RUnlock()
	for _, sub := range copies {
		select {
		case sub.stream <- update:
		default:
		}
	}
}

func (n *Notifier) nextSequence() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	return n.nextID
}

func (n *Notifier) register(roomID string, sub *subscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subscribers[roomID]; !ok {
		n.subscribers[roomID] = make(map[int64]*subscriber)
	}
	n.subscribers[roomID][sub.id] = sub
}

func (n *Notifier) unregister(roomID string, subscriberID int64) {
	n.mu.Lock()
	subscribers := n.subscribers[roomID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(n.subscribers, roomID)
		}
	}
	n.mu.Unlock()
}
