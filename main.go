// Command hashi starts the browser automation bridge API server.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raysh454/hashi/internal/app"
	"github.com/raysh454/hashi/internal/browser"
	"github.com/raysh454/hashi/internal/cli"
	"github.com/raysh454/hashi/internal/logging"
	"github.com/raysh454/hashi/internal/server"
)

func main() {
	args, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("parsing arguments: %v", err)
	}

	logger := logging.NewStdoutLogger("hashi")

	cfg := app.DefaultConfig()
	cfg.BrowserCfg.Backend = browser.Backend(args.Backend)
	cfg.BrowserCfg.Headless = args.Headless
	if args.StorageRoot != "" {
		cfg.StorageRoot = args.StorageRoot
	}

	srv, err := server.NewServer(server.Config{
		ListenAddr: args.Addr,
		AppConfig:  cfg,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("creating server: %v", err)
	}
	defer srv.Close()

	httpSrv := srv.HTTPServer()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening",
			logging.Field{Key: "addr", Value: args.Addr},
			logging.Field{Key: "backend", Value: args.Backend})
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", logging.Field{Key: "error", Value: err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown returned error", logging.Field{Key: "error", Value: err.Error()})
	}
}
