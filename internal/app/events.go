package app

import (
	"sync"
	"time"
)

// EventType distinguishes what a subscriber should do with an Event.
type EventType string

const (
	EventNotification EventType = "notification"
	EventNavigate     EventType = "navigate"
)

// NoticeKind classifies a user-facing notification.
type NoticeKind string

const (
	NoticeInfo           NoticeKind = "info"
	NoticeError          NoticeKind = "error"
	NoticeSessionExpired NoticeKind = "session_expired"
	NoticeInactivity     NoticeKind = "inactivity"
)

// Notification is a dismissible message surfaced to the user.
type Notification struct {
	Kind    NoticeKind `json:"kind"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Event is what the broadcaster delivers to subscribers.
type Event struct {
	Type         EventType     `json:"type"`
	Notification *Notification `json:"notification,omitempty"`
	To           string        `json:"to,omitempty"`
	At           time.Time     `json:"at"`
}

// Notifier surfaces notifications to the user.
type Notifier interface {
	Notify(n Notification)
}

// Navigator moves the user to another client route.
type Navigator interface {
	Navigate(to string)
}

// Broadcaster fans out notifications and navigations to every subscriber.
// It implements both Notifier and Navigator.
type Broadcaster struct {
	now         func() time.Time
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		now:         time.Now,
		subscribers: make(map[chan Event]struct{}),
	}
}

func (b *Broadcaster) Notify(n Notification) {
	note := n
	b.publish(Event{Type: EventNotification, Notification: &note})
}

func (b *Broadcaster) Navigate(to string) {
	b.publish(Event{Type: EventNavigate, To: to})
}

// Subscribe returns a channel of events. The caller must invoke the returned
// cancel function to avoid leaks.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Broadcaster) publish(ev Event) {
	ev.At = b.now()

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			// slow subscriber: drop its oldest event
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(string)

func (f NavigatorFunc) Navigate(to string) { f(to) }

type discard struct{}

func (discard) Notify(Notification) {}
func (discard) Navigate(string)     {}
