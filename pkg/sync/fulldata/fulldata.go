// Package fulldata fetches full note content and full resource bodies
// referenced by sync chunks, with two independently bounded pools of
// in-flight requests.
package fulldata

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/quentier-go/notesync/pkg/metrics"
	"github.com/quentier-go/notesync/pkg/sync/notestore"
	"github.com/quentier-go/notesync/pkg/sync/syncerr"
	"github.com/quentier-go/notesync/pkg/types"
)

// Config bounds each pool's maximum in-flight count. Neither may be zero.
type Config struct {
	MaxInFlightNotes     int64
	MaxInFlightResources int64
}

// Downloader is the Full-Data Downloader (spec §4.4): two cooperating
// bounded pools, one for notes and one for resources.
type Downloader struct {
	notes     *semaphore.Weighted
	resources *semaphore.Weighted
}

func New(cfg Config) (*Downloader, error) {
	if cfg.MaxInFlightNotes <= 0 {
		return nil, syncerr.New(syncerr.InvalidArgument, "fulldata: MaxInFlightNotes must be > 0")
	}
	if cfg.MaxInFlightResources <= 0 {
		return nil, syncerr.New(syncerr.InvalidArgument, "fulldata: MaxInFlightResources must be > 0")
	}
	return &Downloader{
		notes:     semaphore.NewWeighted(cfg.MaxInFlightNotes),
		resources: semaphore.NewWeighted(cfg.MaxInFlightResources),
	}, nil
}

// DownloadFullNote requests a note with content, resource metadata,
// resource bodies, shared notes and application data per spec, blocking
// until a pool slot is free or ctx is done.
func (d *Downloader) DownloadFullNote(ctx context.Context, scope types.ScopeID, store notestore.Store, authToken, guid string, spec notestore.NoteResultSpec) (types.Note, error) {
	if err := d.notes.Acquire(ctx, 1); err != nil {
		return types.Note{}, syncerr.Canceled()
	}
	defer d.notes.Release(1)

	metrics.FullDataInFlight.WithLabelValues("notes").Inc()
	defer metrics.FullDataInFlight.WithLabelValues("notes").Dec()

	note, err := store.GetNoteWithResultSpec(ctx, authToken, guid, spec)
	if err != nil {
		return types.Note{}, err
	}
	note.NeedsContent = false
	metrics.NotesDownloadedTotal.WithLabelValues(scope.String()).Inc()
	return note, nil
}

// DownloadFullResource requests a resource with data, recognition,
// attributes and alternate data, blocking until a pool slot is free.
func (d *Downloader) DownloadFullResource(ctx context.Context, scope types.ScopeID, store notestore.Store, authToken, guid string) (types.Resource, error) {
	if err := d.resources.Acquire(ctx, 1); err != nil {
		return types.Resource{}, syncerr.Canceled()
	}
	defer d.resources.Release(1)

	metrics.FullDataInFlight.WithLabelValues("resources").Inc()
	defer metrics.FullDataInFlight.WithLabelValues("resources").Dec()

	res, err := store.GetResource(ctx, authToken, guid, true, true, true, true)
	if err != nil {
		return types.Resource{}, err
	}
	res.NeedsContent = false
	metrics.ResourcesDownloadedTotal.WithLabelValues(scope.String()).Inc()
	return res, nil
}
