package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/ankimd/internal/anki"
	"github.com/tonimelisma/ankimd/internal/vault"
)

// EngineConfig assembles an Engine.
type EngineConfig struct {
	Bridge       Bridge
	Labels       LabelMap
	Builder      *Builder
	NoteType     string
	Logger       *slog.Logger
	DryRun       bool
	MediaWorkers int

	// ReadFile reads a local media file. Defaults to os.ReadFile;
	// injectable for tests.
	ReadFile func(path string) ([]byte, error)
}

// Engine is the sync orchestrator: it sequences the remote mutations in
// dependency order and applies confirmed results back into the label map.
type Engine struct {
	bridge       Bridge
	labels       LabelMap
	builder      *Builder
	noteType     string
	logger       *slog.Logger
	dryRun       bool
	mediaWorkers int
	readFile     func(path string) ([]byte, error)
	nowFunc      func() time.Time
}

// NewEngine creates an Engine from the given configuration.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	readFile := cfg.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}

	workers := cfg.MediaWorkers
	if workers < 1 {
		workers = 1
	}

	return &Engine{
		bridge:       cfg.Bridge,
		labels:       cfg.Labels,
		builder:      cfg.Builder,
		noteType:     cfg.NoteType,
		logger:       logger,
		dryRun:       cfg.DryRun,
		mediaWorkers: workers,
		readFile:     readFile,
		nowFunc:      time.Now,
	}
}

// Run executes one full sync of the given cards against the remote store.
// The stage pipeline is strictly sequential; each bulk remote call is a
// synchronization point because later stages need the complete result set.
// Per-card failures are collected in the report; only transport-level
// errors abort the run, and label-map mutations confirmed by completed
// stages are kept — the map must stay a truthful cache of remote state.
func (e *Engine) Run(ctx context.Context, cards []vault.Card) (*Report, error) {
	start := e.nowFunc()

	runID := uuid.New().String()
	logger := e.logger.With(slog.String("run_id", runID))

	report := &Report{RunID: runID, DryRun: e.dryRun, Scanned: len(cards)}

	logger.Info("sync run started",
		slog.Int("cards", len(cards)),
		slog.Bool("dry_run", e.dryRun),
	)

	// Stage 1: build candidate records. Render failures skip the card.
	records, buildFailures := e.builder.BuildAll(ctx, cards)
	report.Failures = append(report.Failures, buildFailures...)
	report.Skipped += len(buildFailures)

	// A card that failed to build still exists locally; its label-map
	// entry must not be mistaken for an orphan and deleted.
	skipped := make(map[string]bool, len(buildFailures))
	for _, f := range buildFailures {
		skipped[f.Label] = true
	}

	// Stage 2: partition (one bulk metadata fetch).
	part, err := e.partition(ctx, records, skipped)
	if err != nil {
		return nil, err
	}

	report.Ignored = len(part.Ignore)

	if e.dryRun {
		return e.finishDryRun(ctx, report, part, start, logger)
	}

	// Stage 3: decks must exist before notes reference them.
	if err := e.createDecks(ctx, part.Create); err != nil {
		return nil, err
	}

	// Stage 4: create notes; confirmed ids go into the label map.
	if err := e.createNotes(ctx, part.Create, report, logger); err != nil {
		return nil, err
	}

	// Stages 5-6: rewrite fields, then reassign decks for updated notes.
	if err := e.updateNotes(ctx, part, report, logger); err != nil {
		return nil, err
	}

	// Stages 7-8: media reconciliation and upload.
	if err := e.syncMedia(ctx, part, report); err != nil {
		return nil, err
	}

	// Stage 9: deletes run last so a label recreated in stage 4 is never
	// clobbered by the removal of its stale entry.
	if err := e.deleteNotes(ctx, part.Delete, report); err != nil {
		return nil, err
	}

	report.Duration = e.nowFunc().Sub(start)

	logger.Info("sync run complete",
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Int("ignored", report.Ignored),
		slog.Int("deleted", report.Deleted),
		slog.Int("uploaded", report.Uploaded),
		slog.Int("failures", len(report.Failures)),
		slog.Duration("duration", report.Duration),
	)

	return report, nil
}

// finishDryRun completes a dry run: the read-only stages (partition, media
// listing, upload resolution) have real results; mutating stages are
// counted as would-have-run.
func (e *Engine) finishDryRun(
	ctx context.Context, report *Report, part Partition, start time.Time, logger *slog.Logger,
) (*Report, error) {
	report.Created = len(part.Create)
	report.Updated = len(part.Update)
	report.Deleted = len(part.Delete)

	writing := append(append([]RemoteRecord{}, part.Create...), part.Update...)

	existing, err := e.fetchMediaNames(ctx, writing, part.Ignore)
	if err != nil {
		return nil, err
	}

	report.Uploaded = len(resolveUploads(writing, part.Ignore, existing))
	report.Duration = e.nowFunc().Sub(start)

	logger.Info("dry run complete",
		slog.Int("would_create", report.Created),
		slog.Int("would_update", report.Updated),
		slog.Int("would_delete", report.Deleted),
		slog.Int("would_upload", report.Uploaded),
	)

	return report, nil
}

// createDecks ensures every deck referenced by a to-create record exists.
// Names are deduplicated and sorted for deterministic call order, then
// checked against the remote listing so only missing decks are created.
func (e *Engine) createDecks(ctx context.Context, creates []RemoteRecord) error {
	if len(creates) == 0 {
		return nil
	}

	wanted := make(map[string]bool, len(creates))
	for i := range creates {
		wanted[creates[i].Deck] = true
	}

	existing, err := e.bridge.DeckNames(ctx)
	if err != nil {
		return fmt.Errorf("sync: listing decks: %w", err)
	}

	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}

	missing := make([]string, 0, len(wanted))
	for name := range wanted {
		if !have[name] {
			missing = append(missing, name)
		}
	}

	sort.Strings(missing)

	for _, name := range missing {
		e.logger.Info("creating deck", slog.String("deck", name))

		if err := e.bridge.CreateDeck(ctx, name); err != nil {
			return fmt.Errorf("sync: creating deck %q: %w", name, err)
		}
	}

	return nil
}

// createNotes issues one bulk addNotes call and records each confirmed id
// in the label map. A per-note rejection skips the map update and is
// reported; the card stays unsynced and recurs as a create next run.
func (e *Engine) createNotes(
	ctx context.Context, creates []RemoteRecord, report *Report, logger *slog.Logger,
) error {
	if len(creates) == 0 {
		return nil
	}

	notes := make([]anki.Note, len(creates))
	for i := range creates {
		notes[i] = anki.Note{
			Deck:    creates[i].Deck,
			Model:   e.noteType,
			Fields:  creates[i].Fields,
			Options: anki.DefaultNoteOptions(),
		}
	}

	results, err := e.bridge.AddNotes(ctx, notes)
	if err != nil {
		return fmt.Errorf("sync: creating notes: %w", err)
	}

	for i, res := range results {
		rec := &creates[i]

		if res.Err != nil {
			logger.Warn("note creation rejected",
				slog.String("label", rec.Label),
				slog.String("deck", rec.Deck),
				slog.String("error", res.Err.Error()),
			)
			report.Failures = append(report.Failures, CardFailure{
				Label: rec.Label,
				Stage: StageCreate,
				Err:   res.Err.Error(),
			})

			continue
		}

		// The remote create is acknowledged; only now does the map change.
		if err := e.labels.Set(ctx, rec.Label, res.NoteID); err != nil {
			return fmt.Errorf("sync: recording label %q: %w", rec.Label, err)
		}

		report.Created++
	}

	return nil
}

// updateNotes rewrites fields for every to-update record in one multi
// batch, then reassigns decks in a second multi batch (the bridge requires
// explicit card-ids+deck pairs per record). Per-item failures are reported
// and skipped.
func (e *Engine) updateNotes(
	ctx context.Context, part Partition, report *Report, logger *slog.Logger,
) error {
	if len(part.Update) == 0 {
		return nil
	}

	fieldReqs := make([]anki.Request, len(part.Update))
	for i := range part.Update {
		fieldReqs[i] = anki.UpdateFieldsRequest(part.Update[i].NoteID, part.Update[i].Fields)
	}

	results, err := e.bridge.Multi(ctx, fieldReqs)
	if err != nil {
		return fmt.Errorf("sync: updating notes: %w", err)
	}

	for i, res := range results {
		rec := &part.Update[i]

		if res.Err != nil {
			logger.Warn("note update failed",
				slog.String("label", rec.Label),
				slog.Int64("note_id", rec.NoteID),
				slog.String("error", res.Err.Error()),
			)
			report.Failures = append(report.Failures, CardFailure{
				Label: rec.Label,
				Stage: StageUpdate,
				Err:   res.Err.Error(),
			})

			continue
		}

		report.Updated++
	}

	deckReqs := make([]anki.Request, len(part.Update))
	for i := range part.Update {
		deckReqs[i] = anki.ChangeDeckRequest(part.Cards[part.Update[i].NoteID], part.Update[i].Deck)
	}

	deckResults, err := e.bridge.Multi(ctx, deckReqs)
	if err != nil {
		return fmt.Errorf("sync: reassigning decks: %w", err)
	}

	for i, res := range deckResults {
		if res.Err == nil {
			continue
		}

		rec := &part.Update[i]
		logger.Warn("deck reassignment failed",
			slog.String("label", rec.Label),
			slog.String("deck", rec.Deck),
			slog.String("error", res.Err.Error()),
		)
		report.Failures = append(report.Failures, CardFailure{
			Label: rec.Label,
			Stage: StageDeck,
			Err:   res.Err.Error(),
		})
	}

	return nil
}

// syncMedia fetches the remote media listing, resolves the upload set, and
// transfers it with bounded concurrency.
func (e *Engine) syncMedia(ctx context.Context, part Partition, report *Report) error {
	writing := append(append([]RemoteRecord{}, part.Create...), part.Update...)

	existing, err := e.fetchMediaNames(ctx, writing, part.Ignore)
	if err != nil {
		return err
	}

	uploads := resolveUploads(writing, part.Ignore, existing)

	uploaded, failures, err := e.uploadMedia(ctx, uploads)
	report.Uploaded = uploaded
	report.Failures = append(report.Failures, failures...)

	if err != nil {
		return fmt.Errorf("sync: uploading media: %w", err)
	}

	return nil
}

// fetchMediaNames issues the bulk existing-names query, skipped entirely
// when no record references media.
func (e *Engine) fetchMediaNames(ctx context.Context, writing, ignored []RemoteRecord) ([]string, error) {
	referenced := false

	for i := range writing {
		if len(writing[i].MediaRefs) > 0 {
			referenced = true
			break
		}
	}

	if !referenced {
		for i := range ignored {
			if len(ignored[i].MediaRefs) > 0 {
				referenced = true
				break
			}
		}
	}

	if !referenced {
		return nil, nil
	}

	names, err := e.bridge.MediaFileNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: listing remote media: %w", err)
	}

	return names, nil
}

// deleteNotes removes orphaned notes in one bulk call, then drops their
// labels from the map — removal strictly after the remote delete is
// acknowledged.
func (e *Engine) deleteNotes(ctx context.Context, deletes []LabelEntry, report *Report) error {
	if len(deletes) == 0 {
		return nil
	}

	ids := make([]int64, len(deletes))
	for i := range deletes {
		ids[i] = deletes[i].NoteID
	}

	if err := e.bridge.DeleteNotes(ctx, ids); err != nil {
		return fmt.Errorf("sync: deleting notes: %w", err)
	}

	for _, entry := range deletes {
		if err := e.labels.Remove(ctx, entry.Label); err != nil {
			return fmt.Errorf("sync: removing label %q: %w", entry.Label, err)
		}

		e.logger.Debug("label removed",
			slog.String("label", entry.Label),
			slog.Int64("note_id", entry.NoteID),
		)

		report.Deleted++
	}

	return nil
}
