package vault

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Scanner walks a vault directory and parses every markdown file for
// cards.
type Scanner struct {
	logger *slog.Logger
}

// NewScanner creates a Scanner.
func NewScanner(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scanner{logger: logger}
}

// Scan walks root and returns every card found. Dot-directories
// (.obsidian, .git, .trash), non-markdown files, and symlinks are skipped.
// Card paths are NFC-normalized with forward slashes; original filesystem
// names are used for file I/O. A label seen twice keeps the first card and
// reports the second as an issue — the label map requires label
// uniqueness.
func (s *Scanner) Scan(ctx context.Context, root string) (*ScanResult, error) {
	s.logger.Debug("vault scan started", slog.String("root", root))

	result := &ScanResult{}
	seen := make(map[string]string) // label -> path of first occurrence

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}

			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
			return nil
		}

		return s.scanFile(root, path, seen, result)
	})
	if err != nil {
		return nil, fmt.Errorf("vault: scanning %s: %w", root, err)
	}

	s.logger.Debug("vault scan complete",
		slog.Int("files", result.Files),
		slog.Int("cards", len(result.Cards)),
		slog.Int("issues", len(result.Issues)),
	)

	return result, nil
}

// scanFile parses one markdown file and merges its cards into the result,
// dropping duplicate labels.
func (s *Scanner) scanFile(root, path string, seen map[string]string, result *ScanResult) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return fmt.Errorf("vault: relativizing %s: %w", path, err)
	}

	// NFC normalization handles macOS NFD filenames; the normalized form is
	// the identity used for deck derivation and diagnostics.
	docPath := norm.NFC.String(filepath.ToSlash(rel))

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("vault: opening %s: %w", path, err)
	}
	defer f.Close()

	cards, issues, err := parseFile(f, docPath)
	if err != nil {
		return err
	}

	result.Files++
	result.Issues = append(result.Issues, issues...)

	for _, card := range cards {
		card.Label = norm.NFC.String(card.Label)

		if first, dup := seen[card.Label]; dup {
			s.logger.Warn("duplicate card label",
				slog.String("label", card.Label),
				slog.String("path", docPath),
				slog.String("first_seen", first),
			)
			result.Issues = append(result.Issues, Issue{
				Path:   docPath,
				Line:   card.Line,
				Reason: reasonDuplicateLabel,
			})

			continue
		}

		seen[card.Label] = docPath
		result.Cards = append(result.Cards, card)
	}

	return nil
}
