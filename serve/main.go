// Command ghostlined is the ghostline daemon.
// It listens on a Unix domain socket for inline-completion requests from
// editors and answers them with suggestions from a local inference service.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	ghostline "github.com/Paranoid-AF/ghostline"
)

// Version is set at build time via -ldflags.
var Version = "dev"

type options struct {
	verbose     bool
	socket      string
	configPath  string
	logFile     string
	metricsAddr string

	log *os.File // open --log-file, if any
}

func main() {
	opts := &options{}
	err := newRootCmdWith(opts).Execute()
	opts.closeLog()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ghostlined:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&options{})
}

func newRootCmdWith(opts *options) *cobra.Command {

	root := &cobra.Command{
		Use:           "ghostlined",
		Short:         "Inline code completion daemon backed by a local Ollama service",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(opts)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVar(&opts.verbose, "verbose", false, "log every request and response")
	flags.StringVar(&opts.socket, "socket", "", "socket path (default $GHOSTLINE_SOCKET, $XDG_RUNTIME_DIR/ghostline.sock, /tmp/ghostline-<uid>.sock)")
	flags.StringVar(&opts.configPath, "config", "", "config file (default "+ghostline.ConfigPath()+")")
	flags.StringVar(&opts.logFile, "log-file", "", "append logs to this file instead of stderr")
	root.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics, /healthz and /status on this address, e.g. 127.0.0.1:9464")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "ghostlined", Version)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective config and its warnings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printConfig(cmd.OutOrStdout(), opts.resolvedConfigPath())
		},
	})

	return root
}

func (o *options) resolvedConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	return ghostline.ConfigPath()
}

func setupLogging(opts *options) error {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		opts.log = f
		out = f
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
	return nil
}

// closeLog closes the log file and points logging back at stderr.
func (o *options) closeLog() {
	if o.log == nil {
		return
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	o.log.Close()
	o.log = nil
}

func run(opts *options) error {
	socketPath := opts.socket
	if socketPath == "" {
		socketPath = resolveSocketPath()
	}
	configPath := opts.resolvedConfigPath()

	slog.Info("starting", "socket", socketPath, "config", configPath, "version", Version)

	srv, err := NewServer(socketPath, configPath)
	if err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	defer srv.Close()

	watcher, err := WatchConfig(configPath, configDebounce, srv.reloadConfig)
	if err != nil {
		slog.Warn("config hot reload disabled", "path", configPath, "error", err)
	} else {
		defer watcher.Close()
	}

	if opts.metricsAddr != "" {
		httpSrv := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           newHTTPHandler(srv, time.Now()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics listener failed", "addr", opts.metricsAddr, "error", err)
			}
		}()
		defer httpSrv.Close()
		slog.Info("metrics listening", "addr", opts.metricsAddr)
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	slog.Info("ready")
	select {
	case <-sigCh:
		slog.Info("shutting down")
		return nil
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
}

// printConfig writes the effective config, env overrides applied, as TOML
// followed by any validation warnings.
func printConfig(w io.Writer, path string) error {
	cfg, err := ghostline.LoadConfigFile(path)
	if err != nil {
		return err
	}
	effective := *cfg
	effective.Service = ghostline.ResolveServiceConfig(cfg)

	fmt.Fprintf(w, "# %s\n", path)
	if err := toml.NewEncoder(w).Encode(effective); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	for _, warning := range ghostline.ValidateConfig(&effective) {
		fmt.Fprintf(w, "# warning: %s\n", warning)
	}
	return nil
}

func resolveSocketPath() string {
	if path := os.Getenv("GHOSTLINE_SOCKET"); path != "" {
		return path
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/ghostline.sock"
	}
	return fmt.Sprintf("/tmp/ghostline-%d.sock", os.Getuid())
}
