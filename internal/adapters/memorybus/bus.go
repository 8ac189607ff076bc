package memorybus

import (
	"sync"
	"sync/atomic"

	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

const subscriberBuffer = 64

type subscriber struct {
	ch     chan ports.Event
	topics map[string]struct{} // vide = tous les topics
}

func (s *subscriber) wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// Bus diffuse les événements du moteur de synchro aux abonnés en mémoire.
// Un abonné trop lent perd des événements plutôt que de bloquer l'émetteur.
type Bus struct {
	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	alive   bool
	dropped atomic.Int64
}

func New() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{}), alive: true}
}

func (b *Bus) Publish(topic string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.alive {
		return
	}
	evt := ports.Event{Topic: topic, Payload: payload}
	for s := range b.subs {
		if !s.wants(topic) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *Bus) Subscribe() (<-chan ports.Event, func()) {
	return b.SubscribeTopics()
}

// SubscribeTopics ne reçoit que les topics listés (tous si aucun).
func (b *Bus) SubscribeTopics(topics ...string) (<-chan ports.Event, func()) {
	s := &subscriber{ch: make(chan ports.Event, subscriberBuffer)}
	if len(topics) > 0 {
		s.topics = make(map[string]struct{}, len(topics))
		for _, t := range topics {
			s.topics[t] = struct{}{}
		}
	}

	b.mu.Lock()
	if !b.alive {
		close(s.ch)
		b.mu.Unlock()
		return s.ch, func() {}
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[s]; ok {
			delete(b.subs, s)
			close(s.ch)
		}
		b.mu.Unlock()
	}

	return s.ch, cancel
}

// Dropped renvoie le nombre d'événements perdus faute de place.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close ferme tous les abonnements; les Publish suivants sont ignorés.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.alive {
		return
	}
	b.alive = false
	for s := range b.subs {
		delete(b.subs, s)
		close(s.ch)
	}
}
