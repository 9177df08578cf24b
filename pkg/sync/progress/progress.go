// Package progress distributes progress events emitted by a single
// synchronization run to any number of observers (a CLI progress bar, a
// metrics collector, a log sink) without coupling the orchestrator to any
// one of them.
package progress

import (
	"sync"
	"time"

	"github.com/quentier-go/notesync/pkg/sync/syncstate"
)

// EventType names one point in the progress union the orchestrator emits,
// per scope, over the course of a run. Every stream of events sharing an
// account+scope+Type carries monotonically non-decreasing counters.
type EventType string

const (
	UserOwnSyncChunksDownloadProgress     EventType = "userOwnSyncChunksDownloadProgress"
	UserOwnSyncChunksDownloaded           EventType = "userOwnSyncChunksDownloaded"
	UserOwnSyncChunksDataProcessingProgress EventType = "userOwnSyncChunksDataProcessingProgress"
	StartLinkedNotebooksDataDownloading    EventType = "startLinkedNotebooksDataDownloading"
	LinkedNotebookSyncChunksDownloadProgress EventType = "linkedNotebookSyncChunksDownloadProgress"
	LinkedNotebookSyncChunksDownloaded     EventType = "linkedNotebookSyncChunksDownloaded"
	LinkedNotebookSyncChunksDataProcessingProgress EventType = "linkedNotebookSyncChunksDataProcessingProgress"
	NoteDownloadProgress                   EventType = "noteDownloadProgress"
	ResourceDownloadProgress                EventType = "resourceDownloadProgress"
	SendStatusUpdate                        EventType = "sendStatusUpdate"
)

// Event is one notification delivered to every subscriber. Only the fields
// relevant to Type are populated; the rest are zero values.
type Event struct {
	Type      EventType
	Timestamp time.Time

	Account            string
	LinkedNotebookGuid string // empty for the user-own scope

	Downloaded int32
	Total      int32

	Counters syncstate.SyncChunksDataCounters
	Status   syncstate.SendStatus
}

// Subscriber is a channel that receives progress events.
type Subscriber chan Event

// Broker fans a single run's progress events out to every subscriber,
// dropping events for any subscriber whose buffer is full rather than
// blocking the run.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan Event
	stopCh      chan struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan Event, 256),
		stopCh:      make(chan struct{}),
	}
}

func (b *Broker) Start() {
	go b.run()
}

func (b *Broker) Stop() {
	close(b.stopCh)
}

func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 64)
	b.subscribers[sub] = true
	return sub
}

func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish queues event for broadcast. The caller's Timestamp is respected if
// set, so callers driving deterministic tests can stamp it themselves.
func (b *Broker) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
