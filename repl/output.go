package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/term"

	ghostline "github.com/Paranoid-AF/ghostline"
	"github.com/Paranoid-AF/ghostline/generate"
)

// termWriter wraps a file and converts \n to \r\n when the file is a terminal
// (raw mode disables the kernel's NL→CRNL translation).
// When the file is redirected, \n passes through unchanged.
func termWriter(f *os.File) io.Writer {
	if term.IsTerminal(int(f.Fd())) {
		return &crlfWriter{w: f}
	}
	return f
}

type crlfWriter struct {
	w io.Writer
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	replaced := bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	_, err := c.w.Write(replaced)
	return len(p), err // report original length to caller
}

// entry is one completion attempt as written to the TOML log.
type entry struct {
	Request    requestEntry     `toml:"request"`
	Suggestion *suggestionEntry `toml:"suggestion,omitempty"`
	Notices    []noticeEntry    `toml:"notices,omitempty"`
}

type requestEntry struct {
	ID         int       `toml:"id"`
	Timestamp  time.Time `toml:"timestamp"`
	Model      string    `toml:"model"`
	Language   string    `toml:"language"`
	Line       int       `toml:"line"`
	Character  int       `toml:"character"`
	Current    string    `toml:"current_line"`
	Status     string    `toml:"status"`
	DurationMS int64     `toml:"duration_ms"`
}

type suggestionEntry struct {
	Text      string `toml:"text"`
	Line      int    `toml:"line"`
	Character int    `toml:"character"`
}

type noticeEntry struct {
	Level   string `toml:"level"`
	Message string `toml:"message"`
}

func newEntry(id int, model, language, current string, pos generate.Position, sug *generate.Suggestion, status generate.Status, notices []ghostline.Notice, elapsed time.Duration) entry {
	e := entry{
		Request: requestEntry{
			ID:         id,
			Timestamp:  time.Now().UTC().Truncate(time.Second),
			Model:      model,
			Language:   language,
			Line:       pos.Line,
			Character:  pos.Character,
			Current:    current,
			Status:     status.String(),
			DurationMS: elapsed.Milliseconds(),
		},
	}
	if sug != nil {
		e.Suggestion = &suggestionEntry{Text: sug.Text, Line: sug.Position.Line, Character: sug.Position.Character}
	}
	for _, n := range notices {
		e.Notices = append(e.Notices, noticeEntry(n))
	}
	return e
}

// writeEntry writes a single TOML-formatted entry to w, preceded by a rule.
func writeEntry(w io.Writer, e entry) error {
	fmt.Fprintf(w, "# %s\n\n", strings.Repeat("═", 60))
	if err := toml.NewEncoder(w).Encode(e); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}
