package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/ankimd/internal/anki"
)

// fieldComparators maps each note field to its equality check against the
// remote value. Adding a field means adding an entry here — the diff
// interface never changes. Comparison is exact equality of rendered text.
var fieldComparators = map[string]func(local, remote string) bool{
	fieldFront: func(local, remote string) bool { return local == remote },
	fieldBack:  func(local, remote string) bool { return local == remote },
}

// partition classifies all candidates against remote state. It issues
// exactly one bulk metadata fetch for the previously-synced candidates and
// delegates the decision logic to the pure classify. skipped holds labels
// of cards that exist locally but could not be built this run; their
// entries must survive untouched.
func (e *Engine) partition(ctx context.Context, candidates []RemoteRecord, skipped map[string]bool) (Partition, error) {
	entries, err := e.labels.Entries(ctx)
	if err != nil {
		return Partition{}, fmt.Errorf("sync: listing label entries: %w", err)
	}

	var ids []int64
	for i := range candidates {
		if candidates[i].NoteID != 0 {
			ids = append(ids, candidates[i].NoteID)
		}
	}

	var infos []anki.NoteInfo
	if len(ids) > 0 {
		infos, err = e.bridge.NotesInfo(ctx, ids)
		if err != nil {
			return Partition{}, fmt.Errorf("sync: fetching remote metadata: %w", err)
		}
	}

	p := classify(candidates, infos, entries, skipped)

	e.logger.Debug("partition computed",
		slog.Int("create", len(p.Create)),
		slog.Int("update", len(p.Update)),
		slog.Int("ignore", len(p.Ignore)),
		slog.Int("delete", len(p.Delete)),
	)

	return p, nil
}

// classify is the pure diff core. infos is positionally aligned with the
// candidates that carry a note id, in candidate order. Decision rules:
//
//   - no note id → Create (never synced).
//   - note id but the remote store reports no metadata → Create with the
//     id reset; the local label survives and the stale mapping is
//     overwritten once the recreate is acknowledged.
//   - metadata present → field-by-field comparison; any difference is an
//     Update, an exact match an Ignore.
//   - every label-map entry with no local candidate → Delete, as a
//     (label, note id) pair since no record exists for it. A label in
//     skipped still has a local card (it just failed to build), so its
//     entry is not an orphan and must not be deleted.
//
// Each input lands in exactly one set; ordering follows the inputs.
func classify(candidates []RemoteRecord, infos []anki.NoteInfo, entries []LabelEntry, skipped map[string]bool) Partition {
	p := Partition{Cards: make(map[int64][]int64)}

	local := make(map[string]bool, len(candidates)+len(skipped))
	for label := range skipped {
		local[label] = true
	}

	infoIdx := 0

	for _, rec := range candidates {
		local[rec.Label] = true

		if rec.NoteID == 0 {
			p.Create = append(p.Create, rec)
			continue
		}

		var info anki.NoteInfo
		if infoIdx < len(infos) {
			info = infos[infoIdx]
		}
		infoIdx++

		if !info.Found() {
			// Self-healing: the remote note vanished. Recreate, never drop.
			rec.NoteID = 0
			p.Create = append(p.Create, rec)

			continue
		}

		if fieldsEqual(rec.Fields, info.Fields) {
			p.Ignore = append(p.Ignore, rec)
			continue
		}

		p.Update = append(p.Update, rec)
		p.Cards[rec.NoteID] = info.Cards
	}

	for _, entry := range entries {
		if !local[entry.Label] {
			p.Delete = append(p.Delete, entry)
		}
	}

	return p
}

// fieldsEqual compares local rendered fields against remote metadata over
// the known field set. A field missing remotely compares unequal.
func fieldsEqual(local map[string]string, remote map[string]anki.FieldValue) bool {
	for name, equal := range fieldComparators {
		rv, ok := remote[name]
		if !ok {
			return false
		}

		if !equal(local[name], rv.Value) {
			return false
		}
	}

	return true
}
