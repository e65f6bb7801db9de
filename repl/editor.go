package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/term"
)

// ErrInterrupt is returned when the user presses Ctrl-C.
var ErrInterrupt = errors.New("interrupted")

// CompleteFunc returns ghost text to show at cursor (a rune offset into
// text), or "" for none.
type CompleteFunc func(text string, cursor int) string

// Editor is a minimal line editor with cursor tracking and inline ghost text.
// It reads from /dev/tty so it works even when stdout is redirected.
type Editor struct {
	in  io.Reader
	out io.Writer

	tty      *os.File
	oldState *term.State

	buf   []byte
	pos   int    // cursor byte offset into buf
	ghost string // suggestion shown at pos, not yet accepted
}

// NewEditor opens /dev/tty and switches to raw mode.
func NewEditor() (*Editor, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/tty: %w", err)
	}

	old, err := term.MakeRaw(int(tty.Fd()))
	if err != nil {
		tty.Close()
		return nil, fmt.Errorf("raw mode: %w", err)
	}

	return &Editor{in: tty, out: tty, tty: tty, oldState: old}, nil
}

// newEditorWith edits over plain streams, without a terminal.
func newEditorWith(in io.Reader, out io.Writer) *Editor {
	return &Editor{in: in, out: out}
}

// Close restores terminal state and closes the tty fd.
func (e *Editor) Close() {
	if e.tty == nil {
		return
	}
	term.Restore(int(e.tty.Fd()), e.oldState)
	e.tty.Close()
}

// Out returns the writer for prompts and UI.
func (e *Editor) Out() io.Writer {
	return e.out
}

// ReadLine displays the prompt and reads one line. Tab asks complete for
// ghost text; a second Tab, or Right at the end of the line, accepts it and
// any other key dismisses it. Returns io.EOF on Ctrl-D with empty input.
func (e *Editor) ReadLine(prompt string, complete CompleteFunc) (string, error) {
	e.buf = e.buf[:0]
	e.pos = 0
	e.ghost = ""
	e.redraw(prompt)

	var esc [8]byte // buffer for escape sequences

	for {
		var b [1]byte
		if _, err := e.in.Read(b[:]); err != nil {
			return "", err
		}

		ghost := e.ghost
		e.ghost = ""

		switch b[0] {
		case 3: // Ctrl-C
			fmt.Fprintf(e.out, "\r\n")
			return "", ErrInterrupt

		case 4: // Ctrl-D
			if len(e.buf) == 0 {
				fmt.Fprintf(e.out, "\r\n")
				return "", io.EOF
			}

		case 13, 10: // Enter
			e.redraw(prompt)
			fmt.Fprintf(e.out, "\r\n")
			return string(e.buf), nil

		case 9: // Tab
			if ghost != "" {
				e.insert([]byte(ghost))
			} else if complete != nil {
				e.ghost = complete(string(e.buf), utf8.RuneCount(e.buf[:e.pos]))
			}

		case 127, 8: // Backspace / Ctrl-H
			if e.pos > 0 {
				_, size := prevRune(e.buf, e.pos)
				copy(e.buf[e.pos-size:], e.buf[e.pos:])
				e.buf = e.buf[:len(e.buf)-size]
				e.pos -= size
			}

		case 1: // Ctrl-A (Home)
			e.pos = 0

		case 5: // Ctrl-E (End)
			e.pos = len(e.buf)

		case 21: // Ctrl-U (clear line)
			e.buf = e.buf[:0]
			e.pos = 0

		case 27: // Escape sequence
			if n, _ := e.in.Read(esc[:1]); n == 0 || esc[0] != '[' {
				break
			}
			if n, _ := e.in.Read(esc[1:2]); n == 0 {
				break
			}
			switch esc[1] {
			case 'D': // Left
				if e.pos > 0 {
					_, size := prevRune(e.buf, e.pos)
					e.pos -= size
				}
			case 'C': // Right
				switch {
				case ghost != "" && e.pos == len(e.buf):
					e.insert([]byte(ghost))
				case e.pos < len(e.buf):
					_, size := utf8.DecodeRune(e.buf[e.pos:])
					e.pos += size
				}
			case 'H': // Home
				e.pos = 0
			case 'F': // End
				e.pos = len(e.buf)
			case '3': // Delete key: \x1b[3~
				e.in.Read(esc[2:3]) // consume '~'
				if e.pos < len(e.buf) {
					_, size := utf8.DecodeRune(e.buf[e.pos:])
					copy(e.buf[e.pos:], e.buf[e.pos+size:])
					e.buf = e.buf[:len(e.buf)-size]
				}
			}

		default: // Printable character
			if b[0] >= 32 {
				ch := []byte{b[0]}
				if b[0] >= 0xC0 {
					tmp := make([]byte, utf8RuneLen(b[0])-1)
					io.ReadFull(e.in, tmp)
					ch = append(ch, tmp...)
				}
				e.insert(ch)
			}
		}

		e.redraw(prompt)
	}
}

// insert puts p at the cursor and moves the cursor past it.
func (e *Editor) insert(p []byte) {
	e.buf = append(e.buf, make([]byte, len(p))...)
	copy(e.buf[e.pos+len(p):], e.buf[e.pos:len(e.buf)-len(p)])
	copy(e.buf[e.pos:], p)
	e.pos += len(p)
}

// redraw clears the current line and redraws prompt, buffer and ghost text,
// then puts the terminal cursor back at pos.
func (e *Editor) redraw(prompt string) {
	// \r = carriage return, \x1b[K = clear to end of line, \x1b[2m = dim
	fmt.Fprintf(e.out, "\r\x1b[K%s%s", prompt, e.buf[:e.pos])
	if e.ghost != "" {
		fmt.Fprintf(e.out, "\x1b[2m%s\x1b[0m", e.ghost)
	}
	fmt.Fprintf(e.out, "%s", e.buf[e.pos:])

	if back := utf8.RuneCountInString(e.ghost) + utf8.RuneCount(e.buf[e.pos:]); back > 0 {
		fmt.Fprintf(e.out, "\x1b[%dD", back)
	}
}

// prevRune returns the rune and byte size of the rune before pos.
func prevRune(buf []byte, pos int) (rune, int) {
	if pos <= 0 {
		return 0, 0
	}
	i := pos - 1
	for i > 0 && !utf8.RuneStart(buf[i]) {
		i--
	}
	return utf8.DecodeRune(buf[i:pos])
}

// utf8RuneLen returns the expected byte length of a UTF-8 sequence
// from its leading byte.
func utf8RuneLen(lead byte) int {
	switch {
	case lead < 0xC0:
		return 1
	case lead < 0xE0:
		return 2
	case lead < 0xF0:
		return 3
	}
	return 4
}
