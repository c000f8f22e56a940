package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"tshirt-designer/config"
	"tshirt-designer/designer"
	"tshirt-designer/handlers/api/designs"
	"tshirt-designer/ingest"
	authMiddleware "tshirt-designer/middleware"
	"tshirt-designer/persist"
	"tshirt-designer/stores"
)

func setupRouter(cfg *config.Config, sessions *designer.Sessions, auth *authMiddleware.Authenticator, assetFiles http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "X-File-Name", "Origin", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api/v2", func(r chi.Router) {
		r.Use(auth.AuthJWT)
		designs.Routes(r, sessions)
	})

	if base := cfg.Storage.AssetBaseURL; assetFiles != nil && strings.HasPrefix(base, "/") {
		base = strings.TrimSuffix(base, "/")
		r.Handle(base+"/*", http.StripPrefix(base, assetFiles))
	}

	return r
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	configPath := flag.String("config", "config.toml", "Path to the TOML configuration file.")
	listenAddress := flag.String("listen", "", "The address to listen on. Overrides the configuration.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	issueToken := flag.String("issue-token", "", "Print a signed token for the given subject and exit.")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if *listenAddress != "" {
		cfg.Server.Listen = *listenAddress
	}

	auth := authMiddleware.NewAuthenticator(cfg.Auth.JWTSecret)
	if *issueToken != "" {
		token, err := auth.CreateJWT(*issueToken, "", "", 24*time.Hour)
		if err != nil {
			logrus.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	backend := stores.New(ctx, cfg.Storage)
	ingester := ingest.New(ingest.NewLocalRefs(),
		ingest.WithMaxDimension(cfg.Editor.MaxDimension),
		ingest.WithQuality(cfg.Editor.JPEGQuality),
	)
	sessions := designer.NewSessions(designer.Deps{
		Ingester:        ingester,
		Docs:            backend.Docs,
		Assets:          backend.Assets,
		Local:           persist.NewFallback(backend.Local),
		RemovePolicy:    cfg.RemovePolicy(),
		DuplicatePolicy: cfg.DuplicatePolicy(),
		NoticeTTL:       time.Duration(cfg.Editor.NoticeSeconds) * time.Second,
		IdleTTL:         time.Duration(cfg.Editor.SessionIdleMinutes) * time.Minute,
	})
	go sessions.RunSweeper(ctx, time.Minute)

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           setupRouter(cfg, sessions, auth, backend.AssetFiles),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logrus.WithField("addr", srv.Addr).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Graceful shutdown failed")
	}
	if c, ok := backend.Docs.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close document store")
		}
	}
}
