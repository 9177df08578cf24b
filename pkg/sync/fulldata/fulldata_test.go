package fulldata

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quentier-go/notesync/pkg/sync/notestore"
	"github.com/quentier-go/notesync/pkg/sync/syncerr"
	"github.com/quentier-go/notesync/pkg/types"
)

type trackingStore struct {
	notestore.Store // unimplemented methods panic if called; tests only exercise the two below

	mu       sync.Mutex
	current  int64
	maxSeen  int64
	delay    time.Duration
	noteCalls int32
}

func (s *trackingStore) GetNoteWithResultSpec(ctx context.Context, authToken, guid string, spec notestore.NoteResultSpec) (types.Note, error) {
	atomic.AddInt32(&s.noteCalls, 1)
	s.enter()
	defer s.leave()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return types.Note{EntityMeta: types.EntityMeta{Guid: guid}}, nil
}

func (s *trackingStore) GetResource(ctx context.Context, authToken, guid string, withData, withRecognition, withAttributes, withAlternateData bool) (types.Resource, error) {
	s.enter()
	defer s.leave()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return types.Resource{EntityMeta: types.EntityMeta{Guid: guid}}, nil
}

func (s *trackingStore) enter() {
	s.mu.Lock()
	s.current++
	if s.current > s.maxSeen {
		s.maxSeen = s.current
	}
	s.mu.Unlock()
}

func (s *trackingStore) leave() {
	s.mu.Lock()
	s.current--
	s.mu.Unlock()
}

func TestNewRejectsZeroLimits(t *testing.T) {
	if _, err := New(Config{MaxInFlightNotes: 0, MaxInFlightResources: 1}); !syncerr.OfKind(err, syncerr.InvalidArgument) {
		t.Fatalf("err = %v, want InvalidArgument", err)
	}
	if _, err := New(Config{MaxInFlightNotes: 1, MaxInFlightResources: 0}); !syncerr.OfKind(err, syncerr.InvalidArgument) {
		t.Fatalf("err = %v, want InvalidArgument", err)
	}
}

func TestDownloadFullNoteRespectsBound(t *testing.T) {
	store := &trackingStore{delay: 20 * time.Millisecond}
	d, err := New(Config{MaxInFlightNotes: 3, MaxInFlightResources: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := d.DownloadFullNote(context.Background(), types.UserOwnScope(), store, "token", "guid", notestore.NoteResultSpec{})
			if err != nil {
				t.Errorf("DownloadFullNote: %v", err)
			}
		}(i)
	}
	wg.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.maxSeen > 3 {
		t.Errorf("max concurrent in-flight = %d, want <= 3", store.maxSeen)
	}
	if atomic.LoadInt32(&store.noteCalls) != 12 {
		t.Errorf("noteCalls = %d, want 12", store.noteCalls)
	}
}

func TestDownloadFullResourceRespectsBound(t *testing.T) {
	store := &trackingStore{delay: 20 * time.Millisecond}
	d, _ := New(Config{MaxInFlightNotes: 3, MaxInFlightResources: 2})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.DownloadFullResource(context.Background(), types.UserOwnScope(), store, "token", "guid"); err != nil {
				t.Errorf("DownloadFullResource: %v", err)
			}
		}()
	}
	wg.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.maxSeen > 2 {
		t.Errorf("max concurrent in-flight = %d, want <= 2", store.maxSeen)
	}
}

func TestDownloadFullNoteCanceledContext(t *testing.T) {
	store := &trackingStore{}
	d, _ := New(Config{MaxInFlightNotes: 1, MaxInFlightResources: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.DownloadFullNote(ctx, types.UserOwnScope(), store, "token", "guid", notestore.NoteResultSpec{})
	if !syncerr.OfKind(err, syncerr.OperationCanceled) {
		t.Fatalf("err = %v, want OperationCanceled", err)
	}
}
