package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	ghostline "github.com/Paranoid-AF/ghostline"
	defaults "github.com/Paranoid-AF/ghostline/default"
	"github.com/Paranoid-AF/ghostline/generate"
	"github.com/Paranoid-AF/ghostline/inference"
)

const (
	// sessionTTL is how long an idle session keeps its engine.
	sessionTTL = 30 * time.Minute

	// recheckTimeout bounds availability checks not tied to a request.
	recheckTimeout = 10 * time.Second

	// maxMessageSize is the largest request line accepted; requests carry
	// whole documents.
	maxMessageSize = 16 << 20
)

// Completer serves the completions of one editor session.
type Completer interface {
	Complete(ctx context.Context, req generate.CompletionRequest) *generate.Suggestion
	Recheck(ctx context.Context) generate.Status
	Status() generate.Status
	Config() ghostline.ServiceConfig
	SetConfig(cfg ghostline.ServiceConfig)
	Close()
}

// CompleterFactory creates the engine of a new session. Notices raised by the
// engine must go to notifier.
type CompleterFactory func(cfg ghostline.ServiceConfig, notifier generate.Notifier) Completer

// engineFactory returns a factory of real engines sharing one inference client.
func engineFactory(client *inference.Client) CompleterFactory {
	return func(cfg ghostline.ServiceConfig, notifier generate.Notifier) Completer {
		return generate.NewEngine(client, cfg, generate.Options{Notifier: notifier})
	}
}

// session is one editor instance: its engine, its undelivered notices, and
// its cancellable in-flight request.
type session struct {
	id      string
	engine  Completer
	notices noticeQueue

	mu        sync.Mutex
	requestID int
	cancel    context.CancelFunc
}

// begin cancels the session's in-flight request and makes cancel the current one.
func (s *session) begin(requestID int, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.requestID = requestID
	s.cancel = cancel
}

// end forgets requestID if it is still the in-flight request.
func (s *session) end(requestID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requestID == requestID {
		s.cancel = nil
	}
}

// noticeQueue holds notices until the next response for the session.
type noticeQueue struct {
	mu      sync.Mutex
	pending []ghostline.Notice
}

func (q *noticeQueue) Notify(n ghostline.Notice) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, n)
}

func (q *noticeQueue) drain() []ghostline.Notice {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// Server listens on a Unix domain socket for editor requests.
type Server struct {
	listener   net.Listener
	sockPath   string
	configPath string
	newEngine  CompleterFactory
	docs       *DocumentStore

	mu       sync.Mutex
	cfg      *ghostline.Config
	sessions *ttlcache.Cache[string, *session]

	closeOnce sync.Once
}

// NewServer creates a new IPC server bound to the given socket path, backed
// by the inference service named in the config file at configPath.
func NewServer(sockPath, configPath string) (*Server, error) {
	return NewServerWithFactory(sockPath, configPath, engineFactory(inference.NewClient()))
}

// NewServerWithFactory creates a new IPC server with a custom engine factory.
func NewServerWithFactory(sockPath, configPath string, factory CompleterFactory) (*Server, error) {
	cfg, err := ghostline.LoadConfigFile(configPath)
	if err != nil {
		slog.Warn("failed to load config, using defaults", "path", configPath, "error", err)
		cfg = ghostline.DefaultConfig()
	}
	for _, w := range ghostline.ValidateConfig(cfg) {
		slog.Warn("config", "warning", w)
	}

	// Remove stale socket file if it exists
	if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	sessions := ttlcache.New[string, *session](
		ttlcache.WithTTL[string, *session](sessionTTL),
	)
	sessions.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *session]) {
		slog.Debug("session closed", "session", item.Key(), "reason", reason)
		item.Value().engine.Close()
	})
	go sessions.Start()

	return &Server{
		listener:   listener,
		sockPath:   sockPath,
		configPath: configPath,
		newEngine:  factory,
		docs:       NewDocumentStore(documentTTL),
		cfg:        cfg,
		sessions:   sessions,
	}, nil
}

// Serve accepts connections and handles requests.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close shuts down the server and every session engine, and removes the socket file.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.listener.Close()
		s.sessions.Stop()
		s.sessions.DeleteAll()
		s.docs.Close()
		os.Remove(s.sockPath)
	})
}

// session returns the session for id, creating it on first use.
func (s *Server) session(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.sessions.Get(id); item != nil {
		return item.Value()
	}

	sess := &session{id: id}
	sess.engine = s.newEngine(ghostline.ResolveServiceConfig(s.cfg), &sess.notices)
	s.sessions.Set(id, sess, ttlcache.DefaultTTL)
	slog.Debug("session opened", "session", id)

	go recheck(sess.engine)
	return sess
}

func recheck(engine Completer) {
	ctx, cancel := context.WithTimeout(context.Background(), recheckTimeout)
	defer cancel()
	engine.Recheck(ctx)
}

// SessionStatus is a snapshot of one session for the status endpoint.
type SessionStatus struct {
	Session string `json:"session"`
	Status  string `json:"status"`
	Host    string `json:"host"`
	Model   string `json:"model"`
}

// Sessions returns a snapshot of every live session.
func (s *Server) Sessions() []SessionStatus {
	var out []SessionStatus
	s.sessions.Range(func(item *ttlcache.Item[string, *session]) bool {
		sess := item.Value()
		cfg := sess.engine.Config()
		out = append(out, SessionStatus{
			Session: sess.id,
			Status:  sess.engine.Status().String(),
			Host:    cfg.Host,
			Model:   cfg.Model,
		})
		return true
	})
	return out
}

// requestKind distinguishes the message types sharing the socket.
type requestKind struct {
	Type   string `json:"type"`
	Action string `json:"action"`
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	if !scanner.Scan() {
		return
	}

	raw := scanner.Bytes()
	slog.Debug("request", "bytes", len(raw))

	var kind requestKind
	if err := json.Unmarshal(raw, &kind); err != nil {
		slog.Warn("invalid request", "error", err)
		return
	}

	switch {
	case kind.Type == "document":
		var req ghostline.DocumentRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			slog.Warn("invalid document request", "error", err)
			return
		}
		s.handleDocumentRequest(conn, &req)
	case kind.Type == "status":
		var req ghostline.StatusRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			slog.Warn("invalid status request", "error", err)
			return
		}
		s.handleStatusRequest(conn, &req)
	case kind.Action != "":
		var req ghostline.ConfigRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			slog.Warn("invalid config request", "error", err)
			return
		}
		s.handleConfigRequest(conn, &req)
	default:
		var req ghostline.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			slog.Warn("invalid request", "error", err)
			return
		}
		s.handleCompletionRequest(conn, &req)
	}
}

func (s *Server) handleCompletionRequest(conn net.Conn, req *ghostline.Request) {
	if req.Line < 0 || req.Character < 0 {
		writeJSON(conn, &ghostline.Response{
			RequestID: req.RequestID,
			Error:     &ghostline.Error{Code: "invalid_request", Message: "line and character must be non-negative"},
		})
		return
	}

	sess := s.session(req.SessionID)

	// Cancel any in-flight request for this session and create a new context.
	ctx, cancel := context.WithCancel(context.Background())
	sess.begin(req.RequestID, cancel)
	defer func() {
		cancel()
		sess.end(req.RequestID)
	}()

	lines := generate.SplitLines(req.Text)
	doc := generate.Document(generate.NewTextDocument(req.Text))
	if req.URI != "" {
		s.docs.Update(req.SessionID, req.URI, req.LanguageID, req.Text)
		doc = s.docs.Live(req.SessionID, req.URI, lines)
	}

	sug := sess.engine.Complete(ctx, generate.CompletionRequest{
		Document:   doc,
		Position:   generate.Position{Line: req.Line, Character: req.Character},
		LanguageID: req.LanguageID,
	})

	// If cancelled, skip writing; the editor has already moved on.
	if ctx.Err() != nil {
		return
	}

	resp := &ghostline.Response{
		RequestID: req.RequestID,
		Status:    sess.engine.Status().String(),
		Notices:   sess.notices.drain(),
	}
	if sug != nil {
		resp.Suggestion = &ghostline.Suggestion{
			Text:      sug.Text,
			Line:      sug.Position.Line,
			Character: sug.Position.Character,
		}
	}
	writeJSON(conn, resp)
}

func (s *Server) handleDocumentRequest(conn net.Conn, req *ghostline.DocumentRequest) {
	resp := ghostline.DocumentResponse{OK: true}

	switch {
	case req.URI == "":
		resp.OK = false
		resp.Error = &ghostline.Error{Code: "invalid_request", Message: "uri is required"}
	case req.Closed:
		s.docs.Remove(req.SessionID, req.URI)
	default:
		s.docs.Update(req.SessionID, req.URI, req.LanguageID, req.Text)
	}

	writeJSON(conn, &resp)
}

func (s *Server) handleStatusRequest(conn net.Conn, req *ghostline.StatusRequest) {
	sess := s.session(req.SessionID)

	status := sess.engine.Status()
	if req.Recheck {
		ctx, cancel := context.WithTimeout(context.Background(), recheckTimeout)
		status = sess.engine.Recheck(ctx)
		cancel()
	}

	cfg := sess.engine.Config()
	writeJSON(conn, &ghostline.StatusResponse{
		Status:  status.String(),
		Host:    cfg.Host,
		Model:   cfg.Model,
		Notices: sess.notices.drain(),
	})
}

func (s *Server) handleConfigRequest(conn net.Conn, req *ghostline.ConfigRequest) {
	var resp ghostline.ConfigResponse

	switch req.Action {
	case "get":
		cfg, err := ghostline.LoadConfigFile(s.configPath)
		if err != nil {
			resp.Error = &ghostline.Error{
				Code:    "config_error",
				Message: err.Error(),
			}
		} else {
			resp.Config = cfg
		}

	case "reload":
		cfg, err := ghostline.LoadConfigFile(s.configPath)
		if err != nil {
			resp.Error = &ghostline.Error{
				Code:    "config_error",
				Message: err.Error(),
			}
			break
		}
		s.applyConfig(cfg)
		resp.Config = cfg

	case "defaults":
		resp.Config = ghostline.DefaultConfig()

	case "default_prompt":
		resp.Prompt = defaults.DefaultPrompt

	case "validate":
		cfg, err := ghostline.LoadConfigFile(s.configPath)
		if err != nil {
			resp.Error = &ghostline.Error{
				Code:    "config_error",
				Message: err.Error(),
			}
		} else {
			resp.Warnings = ghostline.ValidateConfig(cfg)
		}

	default:
		resp.Error = &ghostline.Error{
			Code:    "unknown_action",
			Message: "unknown config action: " + req.Action,
		}
	}

	writeJSON(conn, &resp)
}

// reloadConfig reads the config file again and applies it. A file that fails
// to parse leaves the current config in place.
func (s *Server) reloadConfig() {
	cfg, err := ghostline.LoadConfigFile(s.configPath)
	if err != nil {
		slog.Warn("config reload failed, keeping current config", "path", s.configPath, "error", err)
		return
	}
	s.applyConfig(cfg)
}

// applyConfig replaces the service config of every session and re-checks
// availability in the background. Responses are not blocked on the checks.
func (s *Server) applyConfig(cfg *ghostline.Config) {
	for _, w := range ghostline.ValidateConfig(cfg) {
		slog.Warn("config", "warning", w)
	}

	s.mu.Lock()
	s.cfg = cfg
	svc := ghostline.ResolveServiceConfig(cfg)
	var engines []Completer
	s.sessions.Range(func(item *ttlcache.Item[string, *session]) bool {
		engines = append(engines, item.Value().engine)
		return true
	})
	s.mu.Unlock()

	for _, engine := range engines {
		engine.SetConfig(svc)
		go recheck(engine)
	}
	slog.Info("config reloaded", "host", svc.Host, "model", svc.Model, "sessions", len(engines))
}

func writeJSON(conn net.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	slog.Debug("response", "data", string(data))

	conn.Write(append(data, '\n'))
}
