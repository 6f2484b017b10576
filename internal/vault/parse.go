package vault

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// labelRe matches a label line: a caret followed by the label token, alone
// on the line.
var labelRe = regexp.MustCompile(`^\^([A-Za-z0-9][A-Za-z0-9_-]*)$`)

// Line markers at column 0.
const (
	frontMarker = "Q:"
	backMarker  = "A:"
)

// parseState tracks which field of an open card is being accumulated.
type parseState int

const (
	stateNone parseState = iota
	stateFront
	stateBack
)

// parseFile reads one markdown document and extracts its cards. Cards left
// open at a new Q: marker or at EOF are reported as issues, not errors;
// only I/O failures return an error. docPath is used for Card.Path and
// issue locations.
func parseFile(r io.Reader, docPath string) ([]Card, []Issue, error) {
	var (
		cards  []Card
		issues []Issue

		state parseState
		cur   Card
		front []string
		back  []string
	)

	abandon := func() {
		if state != stateNone {
			issues = append(issues, Issue{Path: docPath, Line: cur.Line, Reason: reasonUnlabeled})
		}

		state = stateNone
	}

	lineNo := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, frontMarker):
			// A Q: while a card is open abandons the open card.
			abandon()

			state = stateFront
			cur = Card{Path: docPath, Line: lineNo}
			front = front[:0]
			back = back[:0]
			front = append(front, markerRest(line, frontMarker))

		case state == stateFront && strings.HasPrefix(line, backMarker):
			state = stateBack
			back = append(back[:0], markerRest(line, backMarker))

		case state != stateNone && labelRe.MatchString(line):
			cur.Label = labelRe.FindStringSubmatch(line)[1]
			cur.Front = joinField(front)
			cur.Back = joinField(back)
			cards = append(cards, cur)
			state = stateNone

		case state == stateFront:
			front = append(front, line)

		case state == stateBack:
			back = append(back, line)
		}
		// Everything else, including an A: outside a card, is plain text.
	}

	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("vault: reading %s: %w", docPath, err)
	}

	// EOF with a card open.
	abandon()

	return cards, issues, nil
}

// markerRest returns the field content following a Q:/A: marker with one
// optional separating space stripped.
func markerRest(line, marker string) string {
	return strings.TrimPrefix(strings.TrimPrefix(line, marker), " ")
}

// joinField assembles accumulated lines into one markdown field, trimming
// trailing blank lines.
func joinField(lines []string) string {
	return strings.TrimRight(strings.Join(lines, "\n"), " \t\n")
}
