package fakenotestore

import (
	"context"
	"testing"

	"github.com/quentier-go/notesync/pkg/sync/notestore"
	"github.com/quentier-go/notesync/pkg/types"
)

func TestSeedIsVisibleInAFullSyncChunk(t *testing.T) {
	s := New()
	s.Seed()

	chunk, err := s.GetFilteredSyncChunk(context.Background(), "token", 0, 100, notestore.SyncChunkFilter{
		IncludeNotes: true, IncludeNotebooks: true,
	})
	if err != nil {
		t.Fatalf("GetFilteredSyncChunk: %v", err)
	}
	if len(chunk.Notebooks) != 1 {
		t.Errorf("Notebooks = %d, want 1", len(chunk.Notebooks))
	}
	if len(chunk.Notes) != 1 {
		t.Errorf("Notes = %d, want 1", len(chunk.Notes))
	}
	if !chunk.Notes[0].NeedsContent {
		t.Error("expected the sync chunk's note to be metadata-only")
	}
}

func TestGetFilteredSyncChunkRespectsAfterUSN(t *testing.T) {
	s := New()
	s.Seed()

	state, err := s.GetSyncState(context.Background(), "token")
	if err != nil {
		t.Fatalf("GetSyncState: %v", err)
	}

	chunk, err := s.GetFilteredSyncChunk(context.Background(), "token", state.UpdateCount, 100, notestore.SyncChunkFilter{
		IncludeNotes: true, IncludeNotebooks: true,
	})
	if err != nil {
		t.Fatalf("GetFilteredSyncChunk: %v", err)
	}
	if len(chunk.Notes) != 0 || len(chunk.Notebooks) != 0 {
		t.Errorf("expected no entities past the current update count, got %+v", chunk)
	}
}

func TestCreateNoteAssignsGuidAndUSN(t *testing.T) {
	s := New()

	note, err := s.CreateNote(context.Background(), "token", types.Note{Title: "a new note", Content: "<en-note>hi</en-note>"})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if note.Guid == "" {
		t.Error("expected a guid to be assigned")
	}
	if note.USN == 0 {
		t.Error("expected a non-zero USN to be assigned")
	}

	got, err := s.GetNoteWithResultSpec(context.Background(), "token", note.Guid, notestore.NoteResultSpec{WithContent: true})
	if err != nil {
		t.Fatalf("GetNoteWithResultSpec: %v", err)
	}
	if got.NeedsContent {
		t.Error("fetched note should not need content")
	}
}

func TestGetNoteWithResultSpecUnknownGuid(t *testing.T) {
	s := New()
	if _, err := s.GetNoteWithResultSpec(context.Background(), "token", "missing", notestore.NoteResultSpec{}); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
