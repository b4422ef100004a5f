// Package snmpingest is the SNMP v1/v2c trap listener: the same
// IngressLog-then-Ingest-task pipeline internal/httpingest drives, fed from
// UDP traps instead of HTTP POSTs.
package snmpingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/fluxgate/correlator/internal/correlator"
	"github.com/fluxgate/correlator/internal/dispatcher"
	"github.com/fluxgate/correlator/internal/httpingest"
	"github.com/fluxgate/correlator/internal/ingresslog"
	"github.com/fluxgate/correlator/internal/logging"
	"github.com/fluxgate/correlator/internal/model"
	"github.com/fluxgate/correlator/internal/rules"
)

// Listener decodes inbound SNMP traps and feeds them into the same ingest
// pipeline the HTTP ingress uses.
type Listener struct {
	logs      *ingresslog.Store
	rules     *rules.Resolver
	queue     dispatcher.TaskQueue
	log       *logging.Logger
	csvFields []string
	community string
	trap      *gosnmp.TrapListener
}

// New constructs a Listener bound to community for v1/v2c trap
// authentication.
func New(logs *ingresslog.Store, resolver *rules.Resolver, queue dispatcher.TaskQueue, log *logging.Logger, csvFields []string, community string) *Listener {
	l := &Listener{logs: logs, rules: resolver, queue: queue, log: log, csvFields: csvFields, community: community}
	tl := gosnmp.NewTrapListener()
	tl.OnNewTrap = l.handleTrap
	tl.Params = gosnmp.Default
	tl.Params.Community = community
	l.trap = tl
	return l
}

// ListenAndServe blocks, decoding traps on bindAddr until ctx is cancelled.
func (l *Listener) ListenAndServe(ctx context.Context, bindAddr string) error {
	errCh := make(chan error, 1)
	go func() { errCh <- l.trap.Listen(bindAddr) }()

	select {
	case <-ctx.Done():
		l.trap.Close()
		return nil
	case err := <-errCh:
		return err
	}
}

func (l *Listener) handleTrap(packet *gosnmp.SnmpPacket, addr *net.UDPAddr) {
	ctx := context.Background()
	ip := addr.IP.String()

	fields := map[string]any{"remote_ip": ip}
	for _, v := range packet.Variables {
		name := mibName(v.Name)
		fields[name] = varbindValue(v)
	}
	fields = httpingest.SplitCSVFields(fields, l.csvFields)

	raw, err := json.Marshal(fields)
	if err != nil {
		l.log.WithError(err).Error("marshal trap varbinds failed")
		return
	}

	toolIP, err := l.rules.MonitorToolIP(ctx, ip)
	if err != nil {
		l.log.WithError(err).Error("resolve monitor tool ip failed")
		return
	}

	logID, err := l.logs.Create(ctx, model.IngressLog{
		Method:          "TRAP",
		TaskType:        "ingest",
		MonitorToolIPID: &toolIP.ID,
		RawBody:         string(raw),
		TaskData:        fields,
	})
	if err != nil {
		l.log.WithError(err).Error("create ingress log failed")
		return
	}

	if err := l.queue.Enqueue(ctx, dispatcher.Task{
		Name: correlator.TaskIngest, EventRecordID: logID, RunAt: time.Now(),
	}); err != nil {
		l.log.WithError(err).Error("enqueue ingest task failed")
	}
}

func varbindValue(v gosnmp.SnmpPDU) string {
	switch val := v.Value.(type) {
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
