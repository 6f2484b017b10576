// Package render converts card field markdown to the HTML AnkiConnect
// stores, extracting embedded media references along the way. Rendering is
// pure: every call returns its own ref slice, so concurrent renders never
// share state.
package render

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"golang.org/x/text/unicode/norm"
)

// MediaRef is one embedded media file encountered during rendering.
type MediaRef struct {
	Key  string // remote file name: NFC-normalized basename of the reference
	Path string // local path resolved against the document's directory
}

// Parser context keys carrying per-render state into the AST transformer.
var (
	docDirKey   = parser.NewContextKey()
	mediaRefKey = parser.NewContextKey()
)

// wikiEmbedRe matches Obsidian-style image embeds ![[name.png]] or
// ![[name.png|alt]] for known image extensions. Other wiki embeds pass
// through as plain text.
var wikiEmbedRe = regexp.MustCompile(`!\[\[([^\[\]|]+?\.(?i:png|jpe?g|gif|svg|webp|bmp))(?:\|[^\[\]]*)?\]\]`)

// Renderer wraps a goldmark instance configured once and safe for
// concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

// New builds the renderer: GFM strikethrough and tables, raw HTML allowed
// (the author owns the vault), and a transformer that collects and rewrites
// image destinations.
func New() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(extension.Strikethrough, extension.Table),
		goldmark.WithParserOptions(
			parser.WithASTTransformers(
				util.Prioritized(&mediaTransformer{}, 100),
			),
		),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)

	return &Renderer{md: md}
}

// Render converts one field's markdown to HTML. docDir is the directory of
// the card's document; relative image destinations resolve against it.
// Returned refs are in document order; duplicates within one source are
// kept (the media reconciler deduplicates across the batch).
func (r *Renderer) Render(source, docDir string) (string, []MediaRef, error) {
	refs := []MediaRef{}

	pctx := parser.NewContext()
	pctx.Set(docDirKey, docDir)
	pctx.Set(mediaRefKey, &refs)

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(normalizeWikiEmbeds(source)), &buf, parser.WithContext(pctx)); err != nil {
		return "", nil, fmt.Errorf("render: converting markdown: %w", err)
	}

	return strings.TrimRight(buf.String(), " \t\n"), refs, nil
}

// normalizeWikiEmbeds rewrites ![[img.png]] to standard image syntax so the
// markdown parser sees it as an image node.
func normalizeWikiEmbeds(source string) string {
	return wikiEmbedRe.ReplaceAllString(source, "![]($1)")
}

// mediaTransformer walks the parsed document, records every local image
// reference, and rewrites its destination to the bare media key — the
// remote store serves media by flat file name.
type mediaTransformer struct{}

func (mediaTransformer) Transform(doc *ast.Document, _ text.Reader, pc parser.Context) {
	refs, ok := pc.Get(mediaRefKey).(*[]MediaRef)
	if !ok {
		return
	}

	docDir, _ := pc.Get(docDirKey).(string)

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		img, ok := n.(*ast.Image)
		if !ok {
			return ast.WalkContinue, nil
		}

		dest := string(img.Destination)
		if dest == "" || isRemoteDest(dest) {
			return ast.WalkContinue, nil
		}

		unescaped, err := url.PathUnescape(dest)
		if err != nil {
			unescaped = dest
		}

		key := norm.NFC.String(path.Base(filepath.ToSlash(unescaped)))

		*refs = append(*refs, MediaRef{
			Key:  key,
			Path: filepath.Join(docDir, filepath.FromSlash(unescaped)),
		})

		img.Destination = []byte(key)

		return ast.WalkContinue, nil
	})
}

// isRemoteDest reports whether an image destination points outside the
// local vault and must be left untouched.
func isRemoteDest(dest string) bool {
	lower := strings.ToLower(dest)

	return strings.HasPrefix(lower, "http:") ||
		strings.HasPrefix(lower, "https:") ||
		strings.HasPrefix(lower, "data:")
}
