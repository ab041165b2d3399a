// Package pipeline drives one ingest run: discover source files, skip the
// ones already checkpointed, and for each new file parse, extract, upsert,
// and checkpoint in order.
package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quillstream/quillstream/internal/archive"
	"github.com/quillstream/quillstream/internal/checkpoint"
	"github.com/quillstream/quillstream/internal/errors"
	"github.com/quillstream/quillstream/internal/event"
	"github.com/quillstream/quillstream/internal/extract"
	"github.com/quillstream/quillstream/internal/source"
	"github.com/quillstream/quillstream/internal/warehouse"
	"github.com/quillstream/quillstream/pkg/types"
)

// Driver runs the ingest pipeline over a source.
type Driver struct {
	src      source.Source
	wh       *warehouse.Warehouse
	cp       *checkpoint.Store
	archiver *archive.Archiver // nil when archiving is disabled
	log      zerolog.Logger
}

// New wires a driver from its components. Pass a nil archiver to disable the
// post-ingest archive step.
func New(src source.Source, wh *warehouse.Warehouse, cp *checkpoint.Store, archiver *archive.Archiver, log zerolog.Logger) *Driver {
	return &Driver{src: src, wh: wh, cp: cp, archiver: archiver, log: log}
}

// Run executes one ingest pass and returns its summary.
//
// Per-file failures (unreadable file, malformed record, warehouse write
// failure) are recorded in the summary and the run continues with the next
// file. A checkpoint append failure is fatal: without a durable mark the
// file would be ingested again next run, so Run aborts and returns the
// partial summary alongside the error.
func (d *Driver) Run(ctx context.Context) (*types.RunSummary, error) {
	runID := uuid.NewString()
	log := d.log.With().Str("run_id", runID).Logger()

	summary := &types.RunSummary{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
	}

	files, err := d.src.List(ctx)
	if err != nil {
		return summary, errors.NewSourceError(errors.CodeListFailed, "failed to list source files", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })
	summary.Discovered = len(files)

	log.Info().Int("discovered", len(files)).Msg("starting ingest run")

	for _, fi := range files {
		if err := ctx.Err(); err != nil {
			return summary, errors.NewInternalError("run canceled", err)
		}

		// Checkpointed files are skipped without being opened.
		if d.cp.Contains(fi.ID) {
			summary.Skipped++
			continue
		}

		records, content, err := d.ingestOne(ctx, fi.ID)
		if err != nil {
			if errors.GetCode(err) == errors.CodeCheckpointAppendFailed {
				summary.FinishedAt = time.Now().UTC()
				return summary, err
			}
			log.Warn().Str("file", fi.ID).Err(err).Msg("file failed, continuing")
			summary.Failed = append(summary.Failed, types.FileFailure{
				FileID: fi.ID,
				Reason: err.Error(),
			})
			continue
		}

		if d.archiver != nil {
			if err := d.archiver.Store(fi.ID, content); err != nil {
				log.Warn().Str("file", fi.ID).Err(err).Msg("archive failed, ignoring")
			}
		}

		summary.Ingested++
		summary.EventsIngested += len(records)
		log.Info().Str("file", fi.ID).Int("events", len(records)).Msg("file ingested")
	}

	counts, err := d.wh.TableCounts(ctx)
	if err != nil {
		return summary, err
	}
	summary.TableCounts = counts
	summary.FinishedAt = time.Now().UTC()

	log.Info().
		Int("discovered", summary.Discovered).
		Int("skipped", summary.Skipped).
		Int("ingested", summary.Ingested).
		Int("failed", summary.FailedCount()).
		Int("events", summary.EventsIngested).
		Dur("duration", summary.Duration()).
		Msg("ingest run finished")

	return summary, nil
}

// ingestOne processes a single file through parse, extract, upsert, and
// checkpoint. The returned content is the raw file bytes, for archiving.
func (d *Driver) ingestOne(ctx context.Context, fileID string) ([]types.Record, []byte, error) {
	content, err := d.src.Read(ctx, fileID)
	if err != nil {
		return nil, nil, errors.NewSourceError(errors.CodeReadFailed, "failed to read "+fileID, err)
	}

	records, err := event.ParseFile(content, fileID)
	if err != nil {
		return nil, nil, err
	}

	extracted := make([]types.Extracted, len(records))
	for i := range records {
		extracted[i] = extract.Fields(records[i])
	}

	if err := d.wh.IngestFile(ctx, records, extracted); err != nil {
		return nil, nil, err
	}

	// Mark only after the file's events are durably committed.
	if err := d.cp.Mark(fileID, content); err != nil {
		return nil, nil, errors.NewCheckpointError(errors.CodeCheckpointAppendFailed,
			"failed to checkpoint "+fileID, err)
	}

	return records, content, nil
}
