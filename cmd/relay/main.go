package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"brainlink.ai/internal/config"
	"brainlink.ai/internal/relay"
)

func main() {
	var (
		configPath  = flag.String("config", "brainlink.yaml", "config file (optional)")
		listen      = flag.String("listen", "", "http listen address (default 127.0.0.1:3000)")
		listenerURL = flag.String("listener", "", "command listener base url (default http://127.0.0.1:8081/)")
		timeout     = flag.Duration("timeout", 0, "listener request timeout (default 10s)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[relay] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		logger.Fatalf("config: %v", err)
	}
	// Older deployments set these.
	if v := strings.TrimSpace(os.Getenv("UNITY_LISTENER")); v != "" {
		cfg.Relay.ListenerURL = v
	}
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			cfg.Relay.Listen = "127.0.0.1:" + v
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Relay.Listen = *listen
		case "listener":
			cfg.Relay.ListenerURL = *listenerURL
		case "timeout":
			cfg.Relay.Timeout = *timeout
		}
	})
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}
	rc := cfg.Relay
	if envBoolWithDefault("BRAINLINK_RELAY_REQUIRE_HMAC", false) && rc.OperatorSecret == "" {
		logger.Fatalf("operator secret required (set BRAINLINK_OPERATOR_SECRET)")
	}
	if !rc.AllowNonLoopback && !config.IsLoopbackAddress(rc.Listen) {
		logger.Fatalf("refusing non-loopback relay bind %q", rc.Listen)
	}

	srv, err := relay.NewServer(relay.Config{
		ListenerURL:      rc.ListenerURL,
		Tools:            rc.Tools,
		Timeout:          rc.Timeout,
		Secret:           rc.OperatorSecret,
		AllowNonLoopback: rc.AllowNonLoopback,
		Logger:           logger,
	})
	if err != nil {
		logger.Fatalf("relay: %v", err)
	}

	authMode := "none(loopback-only)"
	if rc.OperatorSecret != "" {
		authMode = "hmac"
	}
	logger.Printf("auth_mode=%s tools=%d", authMode, len(rc.Tools))

	httpSrv := &http.Server{
		Addr:              rc.Listen,
		Handler:           srv.Handler(),
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

	logger.Printf("listening on http://%s (listener=%s)", rc.Listen, rc.ListenerURL)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("listen: %v", err)
	}
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

func envBoolWithDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
