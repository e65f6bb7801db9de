// Command ghostline-repl is an interactive test bench for ghostline completions.
// Lines typed at the prompt build up a document; Tab asks the engine for a
// completion at the cursor and shows it as ghost text, and each attempt is
// written to stdout as a TOML entry.
//
// Usage:
//
//	./ghostline-repl                  # interactive, TOML on screen
//	./ghostline-repl > log.toml       # prompt on screen, TOML to file
//	./ghostline-repl -f main.go -l go # start from an existing file
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	ghostline "github.com/Paranoid-AF/ghostline"
	"github.com/Paranoid-AF/ghostline/generate"
	"github.com/Paranoid-AF/ghostline/inference"
)

const prompt = "> "

const replDebounce = 50 * time.Millisecond

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		language string
		file     string
		logFile  string
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:           "ghostline-repl",
		Short:         "Interactive ghostline completion bench",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			closeLog, err := setupLogging(logFile)
			if err != nil {
				return err
			}
			defer closeLog()

			var lines []string
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				lines = generate.SplitLines(strings.TrimSuffix(string(data), "\n"))
			}
			return run(language, lines, debounce)
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "plaintext", "language identifier sent with each request")
	cmd.Flags().StringVarP(&file, "file", "f", "", "preload the document from a file")
	cmd.Flags().StringVar(&logFile, "log-file", "", "write engine logs to this file")
	cmd.Flags().DurationVar(&debounce, "debounce", replDebounce, "debounce before each completion")
	return cmd
}

// setupLogging sends slog output to path, or discards it. Logging to the
// terminal would tear through the line being edited.
func setupLogging(path string) (func(), error) {
	if path == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return func() { f.Close() }, nil
}

func run(language string, lines []string, debounce time.Duration) error {
	editor, err := NewEditor()
	if err != nil {
		return err
	}
	defer editor.Close()

	cfg, err := ghostline.LoadConfig()
	if err != nil {
		slog.Warn("config load failed, using defaults", "error", err)
		cfg = ghostline.DefaultConfig()
	}

	notices := &noticeLog{}
	engine := generate.NewEngine(inference.NewClient(), ghostline.ResolveServiceConfig(cfg), generate.Options{
		Debounce: debounce,
		Notifier: notices,
	})
	defer engine.Close()

	b := &bench{
		engine:   engine,
		notices:  notices,
		language: language,
		lines:    lines,
		out:      termWriter(os.Stdout),
		tty:      editor.Out(),
	}

	svc := engine.Config()
	fmt.Fprintf(b.tty, "ghostline-repl: %s on %s (%s)\r\n", svc.Model, svc.Host, language)
	fmt.Fprintf(b.tty, "Tab completes, Tab again accepts. Commands: :lang :show :clear :status :quit\r\n")
	b.recheck()

	ctx := context.Background()
	for {
		line, err := editor.ReadLine(prompt, func(text string, cursor int) string {
			return b.complete(ctx, text, cursor)
		})
		if errors.Is(err, io.EOF) || errors.Is(err, ErrInterrupt) {
			return nil
		}
		if err != nil {
			return err
		}
		if b.command(line) {
			return nil
		}
	}
}

// bench holds the document under edit and drives the engine.
type bench struct {
	engine   *generate.Engine
	notices  *noticeLog
	language string
	lines    []string // committed lines; the edited line follows them
	out      io.Writer
	tty      io.Writer
	requests int
}

// complete requests a suggestion for text, the line after the committed ones.
func (b *bench) complete(ctx context.Context, text string, cursor int) string {
	pos := generate.Position{Line: len(b.lines), Character: cursor}
	doc := generate.NewTextDocument(strings.Join(append(slices.Clone(b.lines), text), "\n"))

	start := time.Now()
	sug := b.engine.Complete(ctx, generate.CompletionRequest{Document: doc, Position: pos, LanguageID: b.language})
	elapsed := time.Since(start)

	b.requests++
	notices := b.notices.drain()

	// Clear the edited line; the editor redraws it afterwards.
	fmt.Fprint(b.tty, "\r\x1b[K")
	b.printNotices(notices)
	if err := writeEntry(b.out, newEntry(b.requests, b.engine.Config().Model, b.language, text, pos, sug, b.engine.Status(), notices, elapsed)); err != nil {
		slog.Warn("write entry failed", "error", err)
	}

	if sug == nil {
		return ""
	}
	return sug.Text
}

// command handles a finished line and reports whether the bench should exit.
// Lines that are not commands are appended to the document.
func (b *bench) command(line string) bool {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch name {
	case ":quit", ":q":
		return true
	case ":lang":
		if arg == "" {
			fmt.Fprintf(b.tty, "language: %s\r\n", b.language)
		} else {
			b.language = strings.TrimSpace(arg)
		}
	case ":show":
		for i, l := range b.lines {
			fmt.Fprintf(b.tty, "%4d  %s\r\n", i, l)
		}
	case ":clear":
		b.lines = nil
	case ":status":
		b.recheck()
	default:
		b.lines = append(b.lines, line)
	}
	return false
}

func (b *bench) recheck() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	status := b.engine.Recheck(ctx)
	b.printNotices(b.notices.drain())
	fmt.Fprintf(b.tty, "status: %s\r\n", status)
}

func (b *bench) printNotices(notices []ghostline.Notice) {
	for _, n := range notices {
		fmt.Fprintf(b.tty, "[%s] %s\r\n", n.Level, n.Message)
	}
}

// noticeLog collects engine notices until the bench prints them.
type noticeLog struct {
	mu      sync.Mutex
	pending []ghostline.Notice
}

func (l *noticeLog) Notify(n ghostline.Notice) {
	l.mu.Lock()
	l.pending = append(l.pending, n)
	l.mu.Unlock()
}

func (l *noticeLog) drain() []ghostline.Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.pending
	l.pending = nil
	return out
}
