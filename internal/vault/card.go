// Package vault scans a markdown vault for study cards and watches it for
// changes. Card syntax inside any markdown file:
//
//	Q: front text (markdown, may span lines)
//	A: back text (markdown, may span lines)
//	^label-token
//
// The label is the card's stable identity across runs; it survives file
// renames and reorganizations.
package vault

// Card is one study card parsed from the vault. Front and Back hold raw
// markdown; rendering happens downstream.
type Card struct {
	Label string // stable identifier from the ^label line
	Front string
	Back  string
	Path  string // vault-relative document path, forward slashes, NFC
	Line  int    // 1-based line of the Q: marker, for diagnostics
}

// Issue is a card-syntax problem found during a scan. Issues never abort
// the scan; they surface in the sync report's skip count.
type Issue struct {
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ScanResult is the outcome of one full vault scan. Cards are in walk
// order, cards within a file in document order.
type ScanResult struct {
	Cards  []Card
	Issues []Issue
	Files  int // markdown files parsed
}

// Issue reasons.
const (
	reasonUnlabeled      = "unlabeled card"
	reasonDuplicateLabel = "duplicate label"
)
