// Command correlator-api serves the correlator's HTTP ingress: the
// monitoring-tool webhook endpoints, the document read-back endpoint, the
// manual-resolve endpoint, and the Prometheus scrape endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fluxgate/correlator/internal/bootstrap"
	"github.com/fluxgate/correlator/internal/httpingest"
)

func main() {
	rootCtx := context.Background()

	app, err := bootstrap.New(rootCtx, "correlator-api")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer app.Close()

	server := httpingest.New(
		app.Docs, app.IngressLogs, app.Rules, app.Queue, app.Correlator, app.Metrics, app.Log,
		app.Config.Ingress.CSVFields, app.Config.Ingress.RateLimitPerSec, app.Config.Ingress.RateLimitBurst,
	)

	addr := fmt.Sprintf("%s:%d", app.Config.Server.Host, app.Config.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}

	go func() {
		app.Log.WithFields(map[string]interface{}{"addr": addr}).Info("correlator-api listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Log.WithError(err).Error("http server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		app.Log.WithError(err).Error("graceful shutdown failed")
	}
}
