// Package events implements the symbol index's typed publish/subscribe
// surface: the event set consumed by upper layers (MCP tools, CLI
// progress output) to observe indexing activity without coupling them
// to the index's internals. Delivery is synchronous and in registration
// order, via a registrable observer list rather than a single-struct
// snapshot.
package events

import (
	"log/slog"
	"sync"
)

// Kind discriminates the event payloads below.
type Kind string

const (
	KindFileIndexed        Kind = "file_indexed"
	KindFileRemoved        Kind = "file_removed"
	KindIndexError         Kind = "index_error"
	KindIndexingStarted    Kind = "indexing_started"
	KindIndexingCompleted  Kind = "indexing_completed"
	KindProgress           Kind = "progress"
	KindCleared            Kind = "cleared"
)

// FileIndexed is emitted after a file is successfully indexed, whether
// the symbols came from the persistent cache or a fresh provider call.
type FileIndexed struct {
	URI          string
	SymbolCount  int
	FromCache    bool
}

// FileRemoved is emitted after a file is removed from the index.
type FileRemoved struct {
	URI string
}

// IndexError is emitted when indexing a single file fails. It does not
// alter index state.
type IndexError struct {
	URI   string
	Error error
}

// IndexingStarted is emitted once at the start of index_files or
// update_incremental, strictly before any per-file event for that batch.
type IndexingStarted struct {
	FileCount int
}

// IndexingCompleted is emitted once, strictly after every per-file event
// for that batch, including when the batch was cancelled early.
type IndexingCompleted struct {
	DurationMs int64
}

// Progress is emitted at batch boundaries during index_files and
// update_incremental.
type Progress struct {
	Current int
	Total   int
}

// Cleared is emitted after clear() or force_clear().
type Cleared struct{}

// Event is the envelope delivered to subscribers. Exactly one of the
// typed fields is populated, matching Kind.
type Event struct {
	Kind Kind

	FileIndexed       *FileIndexed
	FileRemoved       *FileRemoved
	IndexError        *IndexError
	IndexingStarted   *IndexingStarted
	IndexingCompleted *IndexingCompleted
	Progress          *Progress
	Cleared           *Cleared
}

// Subscriber receives events synchronously, in registration order, on
// the goroutine that published them.
type Subscriber func(Event)

// Bus is a synchronous, in-process publish/subscribe surface. A Bus is
// safe for concurrent use: Subscribe may run concurrently with Publish,
// though a subscriber added mid-publish is not guaranteed to see the
// event currently in flight.
type Bus struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	log         *slog.Logger
}

// New creates an empty event bus. log receives a warning whenever a
// subscriber panics; if nil, slog.Default() is used.
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log}
}

// Subscribe registers sub to receive every future event. Returns an
// Unsubscribe func that removes it.
func (b *Bus) Subscribe(sub Subscriber) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := len(b.subscribers)
	b.subscribers = append(b.subscribers, sub)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if id < len(b.subscribers) {
			b.subscribers[id] = nil
		}
	}
}

// Publish delivers ev to every subscriber in registration order. A
// subscriber that panics is recovered and logged; delivery continues to
// the remaining subscribers.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub == nil {
			continue
		}
		b.deliver(sub, ev)
	}
}

func (b *Bus) deliver(sub Subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Warn("event_subscriber_panic", slog.Any("recovered", r), slog.String("event_kind", string(ev.Kind)))
		}
	}()
	sub(ev)
}

func fileIndexed(uri string, count int, fromCache bool) Event {
	return Event{Kind: KindFileIndexed, FileIndexed: &FileIndexed{URI: uri, SymbolCount: count, FromCache: fromCache}}
}

func fileRemoved(uri string) Event {
	return Event{Kind: KindFileRemoved, FileRemoved: &FileRemoved{URI: uri}}
}

func indexError(uri string, err error) Event {
	return Event{Kind: KindIndexError, IndexError: &IndexError{URI: uri, Error: err}}
}

func indexingStarted(fileCount int) Event {
	return Event{Kind: KindIndexingStarted, IndexingStarted: &IndexingStarted{FileCount: fileCount}}
}

func indexingCompleted(durationMs int64) Event {
	return Event{Kind: KindIndexingCompleted, IndexingCompleted: &IndexingCompleted{DurationMs: durationMs}}
}

func progress(current, total int) Event {
	return Event{Kind: KindProgress, Progress: &Progress{Current: current, Total: total}}
}

func cleared() Event {
	return Event{Kind: KindCleared, Cleared: &Cleared{}}
}

// PublishFileIndexed is a convenience wrapper constructing and
// publishing a FileIndexed event.
func (b *Bus) PublishFileIndexed(uri string, count int, fromCache bool) {
	b.Publish(fileIndexed(uri, count, fromCache))
}

// PublishFileRemoved is a convenience wrapper for FileRemoved.
func (b *Bus) PublishFileRemoved(uri string) {
	b.Publish(fileRemoved(uri))
}

// PublishIndexError is a convenience wrapper for IndexError.
func (b *Bus) PublishIndexError(uri string, err error) {
	b.Publish(indexError(uri, err))
}

// PublishIndexingStarted is a convenience wrapper for IndexingStarted.
func (b *Bus) PublishIndexingStarted(fileCount int) {
	b.Publish(indexingStarted(fileCount))
}

// PublishIndexingCompleted is a convenience wrapper for IndexingCompleted.
func (b *Bus) PublishIndexingCompleted(durationMs int64) {
	b.Publish(indexingCompleted(durationMs))
}

// PublishProgress is a convenience wrapper for Progress.
func (b *Bus) PublishProgress(current, total int) {
	b.Publish(progress(current, total))
}

// PublishCleared is a convenience wrapper for Cleared.
func (b *Bus) PublishCleared() {
	b.Publish(cleared())
}
