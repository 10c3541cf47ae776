package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"brainlink.ai/internal/brain"
	"brainlink.ai/internal/config"
	"brainlink.ai/internal/gate/dice"
	"brainlink.ai/internal/operator"
	persistlog "brainlink.ai/internal/persistence/log"
	"brainlink.ai/internal/persistence/savedb"
	"brainlink.ai/internal/persistence/snapshot"
	"brainlink.ai/internal/scene"
	"brainlink.ai/internal/session"
	"brainlink.ai/internal/transport/observer"
	"brainlink.ai/internal/transport/ws"
)

func main() {
	var (
		configPath     = flag.String("config", "brainlink.yaml", "config file (optional)")
		url            = flag.String("url", "", "gateway websocket url (default ws://127.0.0.1:8787/)")
		local          = flag.Bool("local", false, "generate proposals locally instead of dialing the gateway")
		heartbeat      = flag.Duration("heartbeat", 0, "perception interval (default 2s)")
		dc             = flag.Int("dc", 0, "default DC, clamped to [5,20]")
		respect        = flag.Bool("respect_suggested_dc", false, "use the proposal's suggestedDC when present")
		auto           = flag.Bool("auto_resolve", false, "roll proposals as soon as they arrive")
		seed           = flag.Int64("seed", 0, "dice seed (0 = random)")
		operatorListen = flag.String("operator_listen", "", "operator command listener address (empty string disables)")
		savePath       = flag.String("save", "", "save file for party state and DM notes (sqlite, or a zstd snapshot when it ends in .zst)")
		journalDir     = flag.String("journal", "", "resolution journal directory (empty to disable)")
		reconnect      = flag.Bool("reconnect", false, "redial the gateway after a dropped session")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[client] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		logger.Fatalf("config: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			cfg.Client.GatewayURL = *url
		case "local":
			cfg.Client.Local = *local
		case "heartbeat":
			cfg.Client.Heartbeat = *heartbeat
		case "dc":
			cfg.Client.DefaultDC = dice.ClampDC(*dc)
		case "respect_suggested_dc":
			cfg.Client.RespectSuggestedDC = *respect
		case "auto_resolve":
			cfg.Client.AutoResolve = *auto
		case "seed":
			cfg.Client.Seed = *seed
		case "operator_listen":
			cfg.Client.OperatorListen = *operatorListen
		case "save":
			cfg.Client.SavePath = *savePath
		case "journal":
			cfg.Client.JournalDir = *journalDir
		case "reconnect":
			cfg.Client.Reconnect.Enabled = *reconnect
		}
	})
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}
	cc := cfg.Client

	var roller dice.Roller
	if cc.Seed != 0 {
		roller = dice.NewSeeded(cc.Seed)
	} else {
		r, err := dice.NewRandom()
		if err != nil {
			logger.Fatalf("dice: %v", err)
		}
		roller = r
	}

	os.Exit(run(cfg, roller, logger))
}

// run returns the process exit code. Everything it opens is closed before
// it returns.
func run(cfg config.Config, roller dice.Roller, logger *log.Logger) int {
	cc := cfg.Client
	opts := session.Options{
		Scene:              scene.New(cfg.Scene),
		DefaultDC:          cc.DefaultDC,
		RespectSuggestedDC: cc.RespectSuggestedDC,
		AutoResolve:        cc.AutoResolve,
		FlashDuration:      cc.FlashDuration,
		Roller:             roller,
		Logger:             logger,
	}
	switch {
	case cc.SavePath == "":
	case strings.HasSuffix(cc.SavePath, snapshot.Ext):
		opts.Store = snapshot.FileStore{Path: cc.SavePath}
	default:
		store, err := savedb.Open(cc.SavePath)
		if err != nil {
			logger.Printf("save store: %v", err)
			return 1
		}
		defer store.Close()
		opts.Store = store
	}
	if cc.JournalDir != "" {
		journal := persistlog.NewResolutionLogger(cc.JournalDir)
		defer journal.Close()
		opts.Journal = journal
	}

	reg := session.New(opts)
	defer reg.Close()

	ctx, cancel := signalContext()
	defer cancel()

	var client *ws.Client
	if !cc.Local {
		client = &ws.Client{
			URL:       cc.GatewayURL,
			Heartbeat: cc.Heartbeat,
			Reconnect: ws.Backoff{
				Enabled:     cc.Reconnect.Enabled,
				Initial:     cc.Reconnect.Initial,
				Max:         cc.Reconnect.Max,
				MaxAttempts: cc.Reconnect.MaxAttempts,
			},
			Handler: reg,
			Source:  reg,
			Logger:  logger,
		}
	}

	if cc.OperatorListen != "" {
		if cc.OperatorSecret == "" && !config.IsLoopbackAddress(cc.OperatorListen) {
			logger.Printf("refusing operator bind on non-loopback %q without an operator secret", cc.OperatorListen)
			return 1
		}
		opCfg := operator.Config{Backend: reg, HMACSecret: cc.OperatorSecret, Logger: logger}
		if client != nil {
			opCfg.Link = client
		}
		op, err := operator.NewServer(opCfg)
		if err != nil {
			logger.Printf("operator: %v", err)
			return 1
		}
		mux := http.NewServeMux()
		mux.Handle("/", op.Handler())
		mux.HandleFunc("/observe", observer.NewServer(reg, logger).WSHandler())
		opSrv := &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		ln, err := net.Listen("tcp", cc.OperatorListen)
		if err != nil {
			logger.Printf("operator listen: %v", err)
			return 1
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = opSrv.Shutdown(shutdownCtx)
		}()
		go func() {
			logger.Printf("operator listening on http://%s", ln.Addr())
			if err := opSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
				logger.Printf("operator serve: %v", err)
			}
		}()
	}

	logger.Printf("actors=%v default_dc=%d auto_resolve=%t respect_suggested_dc=%t",
		reg.Actors(), reg.Stage.DefaultDC(), reg.AutoResolve(), reg.RespectSuggested())

	if client == nil {
		rot := brain.NewRotation(reg.Scene.Actors())
		logger.Printf("local mode: heartbeat=%s", cc.Heartbeat)
		_ = reg.RunLocal(ctx, rot.Next, cc.Heartbeat)
		return 0
	}

	if err := client.Run(ctx); err != nil {
		logger.Printf("session: %v", err)
		return 1
	}
	logger.Printf("session closed")
	return 0
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
