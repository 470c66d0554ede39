package alerting

import (
	"sync"
	"time"

	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/models"
)

type EventType string

const (
	EventCreated      EventType = "alert.created"
	EventEscalated    EventType = "alert.escalated"
	EventAcknowledged EventType = "alert.acknowledged"
	EventMonitoring   EventType = "alert.monitoring"
	EventResolved     EventType = "alert.resolved"
)

// Event is a snapshot of an alert right after a transition.
type Event struct {
	Type  EventType    `json:"type"`
	Alert models.Alert `json:"alert"`
	At    time.Time    `json:"at"`
}

type subscribers struct {
	mu   sync.RWMutex
	next int
	subs map[int]chan Event
	log  *logger.Logger
}

func newSubscribers(log *logger.Logger) *subscribers {
	return &subscribers{subs: make(map[int]chan Event), log: log}
}

func (s *subscribers) add(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (s *subscribers) publish(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.log.Warn("Alert subscriber %d is full, dropping %s for %s", id, ev.Type, ev.Alert.ID)
		}
	}
}
