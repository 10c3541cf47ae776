// Package relay forwards tool invocations from a loopback caller to the host
// command listener.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"brainlink.ai/internal/config"
	"brainlink.ai/internal/operator"
)

const (
	defaultTimeout = 10 * time.Second
	callerName     = "relay"
)

type Config struct {
	// ListenerURL is the base URL of the command listener; "command" is
	// resolved against it.
	ListenerURL      string
	Tools            []config.Tool
	Timeout          time.Duration
	Secret           string
	AllowNonLoopback bool
	Client           *http.Client
	Logger           *log.Logger
}

type Server struct {
	commandURL       string
	tools            []config.Tool
	secret           string
	allowNonLoopback bool
	client           *http.Client
	log              *log.Logger
	now              func() time.Time
}

func NewServer(cfg Config) (*Server, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.ListenerURL))
	if err != nil {
		return nil, fmt.Errorf("listener url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("listener url: unsupported scheme %q", base.Scheme)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	tools := cfg.Tools
	if tools == nil {
		tools = config.DefaultTools()
	}
	return &Server{
		commandURL:       base.ResolveReference(&url.URL{Path: "command"}).String(),
		tools:            tools,
		secret:           cfg.Secret,
		allowNonLoopback: cfg.AllowNonLoopback,
		client:           client,
		log:              logger,
		now:              time.Now,
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, map[string]any{"status": "ok", "timestamp": s.now().UTC().Format(time.RFC3339)})
	})
	mux.HandleFunc("/tools", s.handleTools)
	mux.HandleFunc("/mcp-tools", s.handleTools)
	mux.HandleFunc("/invoke", s.handleInvoke)
	return s.loopbackOnly(mux)
}

func (s *Server) loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowNonLoopback && !isLoopbackRemote(r.RemoteAddr) {
			rw.WriteHeader(http.StatusForbidden)
			_, _ = rw.Write([]byte("forbidden: non-loopback client"))
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func (s *Server) handleTools(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"tools": s.tools})
}

// InvokeResult is the reply to POST /invoke.
type InvokeResult struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Status  int    `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleInvoke(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, InvokeResult{Error: "bad body"})
		return
	}
	_ = r.Body.Close()

	var cmd operator.Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		writeJSON(rw, http.StatusBadRequest, InvokeResult{Error: "bad request: " + err.Error()})
		return
	}
	s.log.Printf("invoke tool=%s input=%s", cmd.Tool, cmd.Input)

	text, status, err := s.Invoke(r.Context(), cmd)
	if err != nil {
		s.log.Printf("invoke tool=%s err=%v", cmd.Tool, err)
		writeJSON(rw, http.StatusInternalServerError, InvokeResult{Error: err.Error()})
		return
	}
	s.log.Printf("listener status=%d response=%s", status, text)
	writeJSON(rw, http.StatusOK, InvokeResult{Success: true, Result: text, Status: status})
}

// Invoke posts cmd to the listener and returns its raw reply. Any HTTP
// response counts as delivered; only transport failures are errors.
func (s *Server) Invoke(ctx context.Context, cmd operator.Command) (string, int, error) {
	b, err := json.Marshal(cmd)
	if err != nil {
		return "", 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.commandURL, bytes.NewReader(b))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("content-type", "application/json")
	if s.secret != "" {
		operator.Sign(req, b, s.secret, callerName, uuid.NewString(), s.now())
	}
	res, err := s.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("post %s: %w", s.commandURL, err)
	}
	defer res.Body.Close()
	text, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return "", res.StatusCode, fmt.Errorf("read reply: %w", err)
	}
	return string(text), res.StatusCode, nil
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("content-type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
