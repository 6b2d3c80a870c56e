package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/chi-demo/app"

	"github.com/tendant/s3post/internal/blobstore"
	fsstore "github.com/tendant/s3post/internal/blobstore/fs"
	memorystore "github.com/tendant/s3post/internal/blobstore/memory"
	s3store "github.com/tendant/s3post/internal/blobstore/s3"
	"github.com/tendant/s3post/internal/postform"
)

type Config struct {
	Port            string `env:"PORT" env-default:"9000"`
	StorageURL      string `env:"STORAGE_URL" env-default:"memory://"`
	AccessKeyID     string `env:"ACCESS_KEY_ID" env-default:"minioadmin"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY" env-default:"minioadmin"`
}

// openStore creates a blob store from memory://, file:///path or
// s3://bucket?region=..&endpoint=..&path_style=true
func openStore(ctx context.Context, storageURL string) (blobstore.BlobStore, error) {
	u, err := url.Parse(storageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid STORAGE_URL: %w", err)
	}

	switch u.Scheme {
	case "memory":
		return memorystore.New(), nil
	case "file":
		dir := u.Path
		if u.Host != "" {
			dir = u.Host + u.Path
		}
		store, err := fsstore.New(fsstore.Config{BaseDir: dir})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "s3":
		q := u.Query()
		pathStyle, _ := strconv.ParseBool(q.Get("path_style"))
		store, err := s3store.New(ctx, s3store.Config{
			Bucket:       u.Host,
			Region:       q.Get("region"),
			Endpoint:     q.Get("endpoint"),
			UsePathStyle: pathStyle,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported STORAGE_URL scheme %q", u.Scheme)
	}
}

func routes(handler *postform.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	app.RoutesHealthz(r)
	app.RoutesHealthzReady(r)
	handler.Mount(r)
	return r
}

func main() {
	var config Config
	if err := cleanenv.ReadEnv(&config); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := openStore(ctx, config.StorageURL)
	if err != nil {
		slog.Error("Failed to initialize storage", "err", err)
		os.Exit(1)
	}

	verifier := postform.NewVerifier(postform.StaticSecrets(map[string]string{
		config.AccessKeyID: config.SecretAccessKey,
	}))

	httpServer := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           routes(postform.NewHandler(verifier, store)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("POST upload server starting",
			"port", config.Port,
			"storage", strings.SplitN(config.StorageURL, "?", 2)[0],
			"access_key", config.AccessKeyID)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
		os.Exit(1)
	}
}
