// Package downloader pages sync chunks from a single scope's note-store
// endpoint, validating USN ordering and retrying transient failures.
package downloader

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/quentier-go/notesync/pkg/log"
	"github.com/quentier-go/notesync/pkg/metrics"
	"github.com/quentier-go/notesync/pkg/sync/notestore"
	"github.com/quentier-go/notesync/pkg/sync/syncerr"
	"github.com/quentier-go/notesync/pkg/types"
)

// RetryConfig bounds the retry/backoff behavior for transient network
// errors. RateLimitReached and AuthenticationExpired are never retried
// regardless of this config.
type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	Disabled        bool
}

// Request describes one scope's paging parameters, as decided by the
// orchestrator's full-vs-incremental rule (spec §4.8).
type Request struct {
	Scope           types.ScopeID
	AuthToken       string
	AfterUSN        int32
	MaxChunkEntries int32
	Filter          notestore.SyncChunkFilter
	FullSync        bool
	LinkedNotebook  types.LinkedNotebook // only when Scope.Affiliation == AffiliationLinkedNotebook
}

// ProgressFunc is invoked after each chunk is accepted, before it is handed
// to the caller's ChunkFunc.
type ProgressFunc func(chunkHighUSN, updateCount, lastPreviousUSN int32)

// ChunkFunc receives one accepted chunk. Returning an error aborts paging.
type ChunkFunc func(ctx context.Context, chunk notestore.SyncChunk) error

// Downloader is the Sync Chunks Downloader (spec §4.2).
type Downloader struct {
	store notestore.Store
	retry RetryConfig
	log   zerolog.Logger
}

func New(store notestore.Store, retry RetryConfig) (*Downloader, error) {
	if store == nil {
		return nil, syncerr.New(syncerr.InvalidArgument, "downloader: Store is required")
	}
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 3
	}
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = 500 * time.Millisecond
	}
	return &Downloader{store: store, retry: retry, log: log.WithComponent("downloader")}, nil
}

// Run pages chunks starting at req.AfterUSN until the chunk-high USN
// reaches the server's updateCount or the tail chunk (no chunkHighUSN) is
// received, calling onProgress and onChunk for each accepted chunk in
// order.
func (d *Downloader) Run(ctx context.Context, req Request, onProgress ProgressFunc, onChunk ChunkFunc) error {
	logger := d.log.With().Str("scope", req.Scope.String()).Logger()

	afterUSN := req.AfterUSN
	var lastChunkHighUSN int32 = req.AfterUSN

	for {
		if err := ctx.Err(); err != nil {
			return syncerr.Canceled()
		}

		timer := metrics.NewTimer()
		chunk, err := d.fetchChunk(ctx, req, afterUSN)
		timer.ObserveDurationVec(metrics.SyncChunkDownloadDuration, req.Scope.String())
		if err != nil {
			return err
		}
		metrics.SyncChunksDownloadedTotal.WithLabelValues(req.Scope.String()).Inc()

		if chunk.HasChunkHighUSN && chunk.ChunkHighUSN <= lastChunkHighUSN {
			return syncerr.Newf(syncerr.ProtocolViolation,
				"chunk high USN %d did not increase past previous %d for scope %s", chunk.ChunkHighUSN, lastChunkHighUSN, req.Scope)
		}

		logger.Debug().
			Int32("afterUsn", afterUSN).
			Int32("chunkHighUsn", chunk.ChunkHighUSN).
			Bool("hasChunkHighUsn", chunk.HasChunkHighUSN).
			Int32("updateCount", chunk.UpdateCount).
			Msg("downloaded sync chunk")

		if onProgress != nil {
			onProgress(chunk.ChunkHighUSN, chunk.UpdateCount, lastChunkHighUSN)
		}
		if onChunk != nil {
			if err := onChunk(ctx, chunk); err != nil {
				return err
			}
		}

		if !chunk.HasChunkHighUSN || chunk.ChunkHighUSN == chunk.UpdateCount {
			return nil
		}

		lastChunkHighUSN = chunk.ChunkHighUSN
		afterUSN = chunk.ChunkHighUSN
	}
}

func (d *Downloader) fetchChunk(ctx context.Context, req Request, afterUSN int32) (notestore.SyncChunk, error) {
	var chunk notestore.SyncChunk

	op := func() error {
		var err error
		if req.Scope.Affiliation == types.AffiliationLinkedNotebook {
			chunk, err = d.store.GetLinkedNotebookSyncChunk(ctx, req.AuthToken, req.LinkedNotebook, afterUSN, req.MaxChunkEntries, req.FullSync)
		} else {
			chunk, err = d.store.GetFilteredSyncChunk(ctx, req.AuthToken, afterUSN, req.MaxChunkEntries, req.Filter)
		}
		if err != nil && !d.retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if d.retry.Disabled {
		err := op()
		if perm, ok := err.(*backoff.PermanentError); ok {
			return chunk, perm.Err
		}
		return chunk, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.retry.InitialInterval
	bounded := backoff.WithMaxRetries(bo, d.retry.MaxRetries)

	if err := backoff.Retry(op, backoff.WithContext(bounded, ctx)); err != nil {
		if perm, ok := err.(*backoff.PermanentError); ok {
			return chunk, perm.Err
		}
		return chunk, err
	}
	return chunk, nil
}

func (d *Downloader) retryable(err error) bool {
	return !syncerr.IsStopSyncTrigger(err) && !syncerr.OfKind(err, syncerr.ProtocolViolation)
}
