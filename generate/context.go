package generate

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// contextLines is the number of lines taken on each side of the cursor line.
const contextLines = 10

// ErrPositionOutOfRange is returned when a position lies outside the document.
var ErrPositionOutOfRange = errors.New("position out of range")

// Position is a zero-based cursor location. Character counts runes.
type Position struct {
	Line      int
	Character int
}

// Document is line-addressable text. Lines returns the current content and
// may change between calls when the document is live.
type Document interface {
	Lines() []string
}

// TextDocument is an immutable Document snapshot.
type TextDocument struct {
	lines []string
}

// NewTextDocument splits text into lines. "\r\n" and "\n" both end a line.
func NewTextDocument(text string) *TextDocument {
	return &TextDocument{lines: SplitLines(text)}
}

// Lines returns the document's lines.
func (d *TextDocument) Lines() []string { return d.lines }

// SplitLines splits text on line endings. An empty text is one empty line.
func SplitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// ContextWindow is the text around the cursor that grounds a completion.
type ContextWindow struct {
	Preceding []string // up to contextLines lines before the cursor line, in order
	Current   string   // the cursor line, verbatim
	Following []string // up to contextLines lines after the cursor line, in order
}

// Extract returns the context window around pos.
func Extract(doc Document, pos Position) (ContextWindow, error) {
	lines := doc.Lines()
	if !inDocument(lines, pos) {
		return ContextWindow{}, ErrPositionOutOfRange
	}
	current := lines[pos.Line]

	start := max(0, pos.Line-contextLines)
	end := min(len(lines)-1, pos.Line+contextLines)

	return ContextWindow{
		Preceding: append([]string(nil), lines[start:pos.Line]...),
		Current:   current,
		Following: append([]string(nil), lines[pos.Line+1:end+1]...),
	}, nil
}

// inDocument reports whether pos addresses a line of lines and a rune offset
// no greater than that line's length.
func inDocument(lines []string, pos Position) bool {
	if pos.Line < 0 || pos.Line >= len(lines) {
		return false
	}
	return pos.Character >= 0 && pos.Character <= utf8.RuneCountInString(lines[pos.Line])
}

// textBefore returns the first character runes of line, clamped to the line.
func textBefore(line string, character int) string {
	if character <= 0 {
		return ""
	}
	n := 0
	for i := range line {
		if n == character {
			return line[:i]
		}
		n++
	}
	return line
}

// nonSpaceCount counts the non-whitespace runes in s.
func nonSpaceCount(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
