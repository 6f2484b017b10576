package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	gosync "sync"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/ankimd/internal/vault"
)

// Deck naming constants. "::" is the remote store's hierarchy separator.
const (
	deckSeparator   = "::"
	defaultDeckName = "Default"
)

// Field names of the note model the builder populates.
const (
	fieldFront = "Front"
	fieldBack  = "Back"
)

// BuildConfig carries the configuration the record builder needs.
type BuildConfig struct {
	VaultDir      string
	RootDeck      string
	DeckPerFolder bool
	Workers       int
}

// Builder converts local cards into candidate remote records. It reads the
// label map but never mutates it.
type Builder struct {
	labels   LabelGetter
	renderer Renderer
	cfg      BuildConfig
	logger   *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(labels LabelGetter, renderer Renderer, cfg BuildConfig, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	return &Builder{
		labels:   labels,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger,
	}
}

// Build converts one card into its candidate remote record: note id from
// the label map (absence is normal), deck name derived from configuration
// and the card's folder, fields rendered to HTML with media refs collected
// front then back.
func (b *Builder) Build(ctx context.Context, card vault.Card) (RemoteRecord, error) {
	rec := RemoteRecord{
		Label: card.Label,
		Deck:  deckName(b.cfg.RootDeck, b.cfg.DeckPerFolder, card.Path),
	}

	noteID, ok, err := b.labels.Get(ctx, card.Label)
	if err != nil {
		return RemoteRecord{}, fmt.Errorf("sync: looking up label %q: %w", card.Label, err)
	}

	if ok {
		rec.NoteID = noteID
	}

	docDir := filepath.Join(b.cfg.VaultDir, filepath.FromSlash(path.Dir(card.Path)))

	front, frontRefs, err := b.renderer.Render(card.Front, docDir)
	if err != nil {
		return RemoteRecord{}, fmt.Errorf("sync: rendering front of %q: %w", card.Label, err)
	}

	back, backRefs, err := b.renderer.Render(card.Back, docDir)
	if err != nil {
		return RemoteRecord{}, fmt.Errorf("sync: rendering back of %q: %w", card.Label, err)
	}

	rec.Fields = map[string]string{fieldFront: front, fieldBack: back}
	rec.MediaRefs = append(frontRefs, backRefs...)

	return rec, nil
}

// BuildAll builds candidate records for all cards with bounded
// parallelism. Output order equals input order regardless of scheduling; a
// failed card becomes a CardFailure and drops out of the candidates while
// the batch continues.
func (b *Builder) BuildAll(ctx context.Context, cards []vault.Card) ([]RemoteRecord, []CardFailure) {
	built := make([]*RemoteRecord, len(cards))

	var mu gosync.Mutex
	var failures []CardFailure

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)

	for i := range cards {
		g.Go(func() error {
			card := cards[i]

			rec, err := b.Build(gctx, card)
			if err != nil {
				b.logger.Warn("card build failed, skipping",
					slog.String("label", card.Label),
					slog.String("path", card.Path),
					slog.String("error", err.Error()),
				)

				mu.Lock()
				failures = append(failures, CardFailure{
					Label: card.Label,
					Path:  card.Path,
					Stage: StageRender,
					Err:   err.Error(),
				})
				mu.Unlock()

				return nil // per-card failures never abort the batch
			}

			built[i] = &rec

			return nil
		})
	}

	// Workers only return nil; Wait is for the join.
	_ = g.Wait()

	records := make([]RemoteRecord, 0, len(cards))
	for _, rec := range built {
		if rec != nil {
			records = append(records, *rec)
		}
	}

	return records, failures
}

// deckName derives the remote deck for a card. With folder decks disabled
// the root deck takes everything; enabled, the card's parent folders
// become subdecks with "/" rewritten to "::". A name that reduces to
// nothing falls back to the fixed default deck.
func deckName(root string, perFolder bool, cardPath string) string {
	name := root

	if perFolder {
		parent := path.Dir(cardPath)
		if parent == "." || parent == "/" {
			parent = ""
		}

		sub := strings.ReplaceAll(parent, "/", deckSeparator)

		switch {
		case sub == "":
			// Root-level document: the root deck alone.
		case name == "":
			name = sub
		default:
			name = name + deckSeparator + sub
		}
	}

	if strings.Trim(name, ":") == "" {
		return defaultDeckName
	}

	return name
}
