// Package main starts the Estakaadi planner data server: it loads
// configuration, opens local storage, selects a storage backend and serves
// the HTTP API until interrupted.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/estakaadi/internal/config"
	"github.com/atinyakov/estakaadi/internal/events"
	"github.com/atinyakov/estakaadi/internal/idgen"
	"github.com/atinyakov/estakaadi/internal/kv"
	"github.com/atinyakov/estakaadi/internal/logger"
	"github.com/atinyakov/estakaadi/internal/server/handler/http"
	"github.com/atinyakov/estakaadi/internal/service"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	options := config.Parse()

	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	if err := run(options, zapLogger); err != nil {
		zapLogger.Fatal("server stopped", zap.Error(err))
	}
}

func run(options *config.Options, zapLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(options.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Key-value file shared by the flat backend, legacy keys and backups.
	boltStore, err := kv.OpenBolt(options.KVPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := boltStore.Close(); err != nil {
			zapLogger.Warn("failed to close kv store", zap.Error(err))
		}
	}()
	tab := kv.NewHub(boltStore, zapLogger).Open()

	bus := events.NewBus(zapLogger)
	ids := idgen.New()

	opts := service.Options{
		Backends: []service.BackendFactory{
			service.Structured(options.DatabaseDriver, options.DatabaseDSN, ids, zapLogger),
			service.Flat(tab, ids, bus, zapLogger),
		},
		Local:      tab,
		Bus:        bus,
		IDs:        ids,
		QuotaBytes: int64(options.QuotaBytes),
	}
	if options.ScheduleFile != "" {
		opts.Bundle = os.DirFS(filepath.Dir(options.ScheduleFile))
		opts.BundlePath = filepath.Base(options.ScheduleFile)
	}

	svc, err := service.Open(ctx, zapLogger, opts)
	if err != nil {
		return fmt.Errorf("open data service: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			zapLogger.Warn("failed to close data service", zap.Error(err))
		}
	}()
	svc.StartBackground(ctx, options.FlushInterval.Duration, options.LogCleanInterval.Duration)

	dataHandler := &http.DataHandler{DataService: svc, AppName: options.AppName}
	eventsHandler := &http.EventsHandler{Bus: bus, Log: zapLogger}
	// With client certificates configured, only a certificate names the actor.
	router := http.NewRouter(dataHandler, eventsHandler, zapLogger, options.TLSClientCA == "")

	server := &nethttp.Server{
		Addr:              options.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	useTLS := options.TLSCert != "" && options.TLSKey != ""
	if useTLS {
		tlsConfig, err := serverTLS(options)
		if err != nil {
			return err
		}
		server.TLSConfig = tlsConfig
	}

	errCh := make(chan error, 1)
	go func() {
		zapLogger.Info("starting server",
			zap.String("addr", options.Addr),
			zap.Bool("tls", useTLS),
			zap.String("backend", svc.Backend().Name()),
		)
		if useTLS {
			errCh <- server.ListenAndServeTLS("", "")
		} else {
			errCh <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, nethttp.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		zapLogger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Warn("graceful shutdown failed", zap.Error(err))
		}
	}
	return nil
}

// serverTLS loads the server key pair and, when a client CA is configured,
// lets clients present a certificate whose CN becomes the actor.
func serverTLS(options *config.Options) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(options.TLSCert, options.TLSKey)
	if err != nil {
		return nil, fmt.Errorf("load server TLS cert/key: %w", err)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if options.TLSClientCA == "" {
		return tlsConfig, nil
	}

	caCert, err := os.ReadFile(options.TLSClientCA)
	if err != nil {
		return nil, fmt.Errorf("read client CA cert: %w", err)
	}
	caCertPool := x509.NewCertPool()
	if ok := caCertPool.AppendCertsFromPEM(caCert); !ok {
		return nil, errors.New("failed to append client CA cert to pool")
	}
	tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	tlsConfig.ClientCAs = caCertPool
	return tlsConfig, nil
}
