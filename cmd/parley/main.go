package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"parley/internal/retention"
	"parley/pkg/api"
	"parley/pkg/auth"
	"parley/pkg/banner"
	"parley/pkg/config"
	"parley/pkg/logger"
	"parley/pkg/models"
	"parley/pkg/security"
	"parley/pkg/store"
	"parley/pkg/utils"
	"parley/pkg/validation"
)

// build metadata - set via ldflags during build/release
var version = "dev"

func main() {
	_ = godotenv.Load(".env")
	addrFlag := flag.String("addr", "", "listen address (host:port), overrides config")
	dbFlag := flag.String("db", "./data", "pebble storage path, overrides config")
	cfgFlag := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()
	setFlags := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	cfg, _, err := config.LoadEffective(*cfgFlag)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.InitWithLevel(cfg.Logging.Level)

	// Flags explicitly set win over env/config.
	addr := cfg.Addr()
	if setFlags["addr"] {
		addr = *addrFlag
	}
	dbPath := cfg.Storage.DBPath
	if dbPath == "" || setFlags["db"] {
		dbPath = *dbFlag
	}

	validation.SetRules(validation.Rules{MaxBodyLen: cfg.Validation.MaxBodyLen})

	if err := store.Open(dbPath); err != nil {
		log.Fatalf("failed to open pebble at %s: %v", dbPath, err)
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		log.Fatalf("no JWT secret configured; set auth.jwt_secret or PARLEY_JWT_SECRET")
	}
	config.SetRuntime(&config.RuntimeConfig{
		JWTSecret:         []byte(secret),
		AccessTTLMinutes:  cfg.Auth.AccessTTLMinutes,
		RefreshTTLMinutes: cfg.Auth.RefreshTTLMinutes,
	})

	if err := bootstrapAdmin(cfg); err != nil {
		log.Fatalf("failed to bootstrap admin account: %v", err)
	}

	ctx, cancelRoot := context.WithCancel(context.Background())
	stopRetention, err := retention.Start(ctx, cfg.Retention)
	if err != nil {
		log.Fatalf("failed to start retention scheduler: %v", err)
	}

	gate := security.NewGate(security.GateConfig{
		TimeGateEnabled: cfg.Security.TimeGate.Enabled,
		OpenHour:        cfg.Security.TimeGate.OpenHour,
		CloseHour:       cfg.Security.TimeGate.CloseHour,
		RateGateEnabled: cfg.Security.RateGate.Enabled,
		PostsPerMinute:  cfg.Security.RateGate.PostsPerMinute,
		Window:          time.Duration(cfg.Security.RateGate.WindowSeconds) * time.Second,
	})
	logins := auth.NewLoginLimiter(cfg.Auth.LoginRPS, cfg.Auth.LoginBurst)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", api.NewRouter(gate, logins))

	srv := &http.Server{Addr: addr, Handler: mux}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigc
		logger.Info("shutdown_signal", "signal", s.String())
		stopRetention()
		cancelRoot()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
		if err := store.Close(); err != nil {
			logger.Error("store_close_failed", "error", err)
		}
	}()

	banner.Print(cfg, dbPath, version)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

// bootstrapAdmin creates the configured superuser account if it does
// not exist yet. Repeat startups are a no-op.
func bootstrapAdmin(cfg *config.Config) error {
	name := cfg.Auth.Bootstrap.Username
	pass := cfg.Auth.Bootstrap.Password
	if name == "" || pass == "" {
		return nil
	}
	if _, err := store.GetUserByUsername(name); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u := models.User{
		ID:           utils.GenID(),
		Username:     name,
		PasswordHash: string(hash),
		Superuser:    true,
		CreatedTS:    time.Now().UTC().UnixNano(),
	}
	if err := store.CreateUser(u); err != nil && !errors.Is(err, store.ErrConflict) {
		return err
	}
	logger.Info("bootstrap_admin_created", "username", name)
	return nil
}
