package gateway

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/byteness/smsotp/validate"
)

// LogGateway writes each message as a JSON line instead of delivering it.
// Used for simulation and local development.
type LogGateway struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// logLine is one LogGateway record.
type logLine struct {
	Timestamp string `json:"timestamp"`
	Gateway   string `json:"gateway"`
	Target    string `json:"target"`
	Message   string `json:"message"`
}

// NewLogGateway creates a LogGateway writing to out.
func NewLogGateway(out io.Writer) *LogGateway {
	return &LogGateway{out: out, now: time.Now}
}

// Kind returns KindLog.
func (g *LogGateway) Kind() string {
	return KindLog
}

// Send writes the masked phone and message.
func (g *LogGateway) Send(_ context.Context, phone, message string) error {
	data, err := json.Marshal(logLine{
		Timestamp: g.now().UTC().Format(time.RFC3339),
		Gateway:   KindLog,
		Target:    validate.MaskPhone(phone),
		Message:   validate.SanitizeForLog(message, 1024),
	})
	if err != nil {
		return newDeliveryError(KindLog, phone, "marshal", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.out.Write(append(data, '\n')); err != nil {
		return newDeliveryError(KindLog, phone, "write", err)
	}
	return nil
}
