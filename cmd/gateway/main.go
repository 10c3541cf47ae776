package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brainlink.ai/internal/brain"
	"brainlink.ai/internal/config"
	persistlog "brainlink.ai/internal/persistence/log"
	"brainlink.ai/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "brainlink.yaml", "config file (optional)")
		listen     = flag.String("listen", "", "http listen address (default from config: 127.0.0.1:8787)")
		path       = flag.String("path", "", "websocket path (default /)")
		journalDir = flag.String("journal", "", "decision journal directory (empty to disable)")
		allowAll   = flag.Bool("allow_non_loopback", false, "allow binding a non-loopback address")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[gateway] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		logger.Fatalf("config: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Gateway.Listen = *listen
		case "path":
			cfg.Gateway.Path = *path
		case "journal":
			cfg.Gateway.JournalDir = *journalDir
		case "allow_non_loopback":
			cfg.Gateway.AllowNonLoopback = *allowAll
		}
	})
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}
	gw := cfg.Gateway
	if !gw.AllowNonLoopback && !config.IsLoopbackAddress(gw.Listen) {
		logger.Fatalf("refusing non-loopback bind %q (set -allow_non_loopback)", gw.Listen)
	}

	if err := serve(gw, logger); err != nil {
		logger.Fatalf("listen: %v", err)
	}
}

// serve blocks until the listener fails or a signal arrives. The decision
// journal is closed before it returns.
func serve(gw config.Gateway, logger *log.Logger) error {
	var decisions ws.DecisionWriter
	if gw.JournalDir != "" {
		dl := persistlog.NewDecisionLogger(gw.JournalDir)
		defer dl.Close()
		decisions = dl
	}

	policy := brain.Heuristic{CloseRange: gw.CloseRange, Forward: gw.Forward}
	srv := ws.NewServer(policy, decisions, logger, gw.ReadLimitBytes)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	wsPath := gw.Path
	if wsPath == "" {
		wsPath = "/"
	}
	mux.Handle(wsPath, srv.Handler())

	httpSrv := &http.Server{
		Addr:              gw.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on ws://%s%s (close_range=%g forward=%g journal=%q)", gw.Listen, wsPath, gw.CloseRange, gw.Forward, gw.JournalDir)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
