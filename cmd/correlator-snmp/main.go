// Command correlator-snmp runs the SNMP v1/v2c trap listener, feeding
// decoded traps into the same IngressLog + ingest-task pipeline the HTTP
// ingress uses.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fluxgate/correlator/internal/bootstrap"
	"github.com/fluxgate/correlator/internal/snmpingest"
)

func main() {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(rootCtx, "correlator-snmp")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer app.Close()

	listener := snmpingest.New(
		app.IngressLogs, app.Rules, app.Queue, app.Log,
		app.Config.Ingress.CSVFields, app.Config.Ingress.SNMPCommunity,
	)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	app.Log.WithFields(map[string]interface{}{"addr": app.Config.Ingress.SNMPBindAddr}).Info("correlator-snmp listening")
	if err := listener.ListenAndServe(rootCtx, app.Config.Ingress.SNMPBindAddr); err != nil {
		app.Log.WithError(err).Error("snmp listener stopped")
	}
}
