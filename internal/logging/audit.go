package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AuditEventType defines the type of audit event (maps to a Mangle predicate)
type AuditEventType string

const (
	// Proof lifecycle -> proof_event/6
	AuditProofStart    AuditEventType = "proof_start"
	AuditProofComplete AuditEventType = "proof_complete"
	AuditProofTimeout  AuditEventType = "proof_timeout"
	AuditProofError    AuditEventType = "proof_error"

	// Availability -> backend_probe/4
	AuditBackendProbe AuditEventType = "backend_probe"

	// Auto-install -> install_event/4
	AuditInstallAttempt AuditEventType = "install_attempt"
	AuditInstallDone    AuditEventType = "install_done"

	// Subprocess -> process_event/5
	AuditProcessStart  AuditEventType = "process_start"
	AuditProcessKilled AuditEventType = "process_killed"
	AuditProcessExit   AuditEventType = "process_exit"
)

// AuditEvent is one structured audit record. Every event renders to a Mangle fact.
type AuditEvent struct {
	Timestamp  int64          `json:"ts"`
	EventType  AuditEventType `json:"event"`
	RequestID  string         `json:"req,omitempty"`
	Backend    string         `json:"backend,omitempty"`
	Target     string         `json:"target,omitempty"` // formula id, rule set or binary
	Status     string         `json:"status,omitempty"`
	Success    bool           `json:"success"`
	DurationMs int64          `json:"dur_ms"`
	Error      string         `json:"error,omitempty"`
}

// AuditLogger writes audit events as JSON lines into <logs_dir>/<date>_audit.log.
type AuditLogger struct {
	mu     sync.Mutex
	logger *zap.Logger
	file   *os.File
	sink   func(AuditEvent)
}

var (
	auditMu     sync.Mutex
	auditLogger = &AuditLogger{}
)

// InitAudit opens the audit file. It is a no-op unless debug mode is enabled.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	a := auditLogger
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		return nil
	}

	configMu.RLock()
	dir := logsDir
	configMu.RUnlock()

	path := filepath.Join(dir, fmt.Sprintf("%s_audit.log", time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = ""
	enc.LevelKey = ""
	enc.MessageKey = "mangle"
	a.file = file
	a.logger = zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(file), zapcore.InfoLevel))
	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	a := auditLogger
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.file != nil {
		a.file.Close()
	}
	a.file, a.logger = nil, nil
}

// Audit returns the global audit logger
func Audit() *AuditLogger {
	return auditLogger
}

// SetSink registers an in-process observer that receives every event, even
// when file auditing is disabled. Passing nil removes it.
func (a *AuditLogger) SetSink(sink func(AuditEvent)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sink = sink
}

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	a.mu.Lock()
	logger, sink := a.logger, a.sink
	a.mu.Unlock()

	if sink != nil {
		sink(event)
	}
	if logger == nil {
		return
	}
	logger.Info(event.ToMangleFact(),
		zap.Int64("ts", event.Timestamp),
		zap.String("event", string(event.EventType)),
		zap.String("req", event.RequestID),
		zap.String("backend", event.Backend),
		zap.String("target", event.Target),
		zap.String("status", event.Status),
		zap.Bool("success", event.Success),
		zap.Int64("dur_ms", event.DurationMs),
		zap.String("error", event.Error),
	)
}

// ToMangleFact renders the event as a Mangle fact.
func (e AuditEvent) ToMangleFact() string {
	switch e.EventType {
	case AuditProofStart, AuditProofComplete, AuditProofTimeout, AuditProofError:
		return fmt.Sprintf("proof_event(%d, /%s, %s, \"%s\", %s, %d).",
			e.Timestamp, e.EventType, mangleName(e.Backend), escapeString(e.Target), mangleName(e.Status), e.DurationMs)

	case AuditBackendProbe:
		return fmt.Sprintf("backend_probe(%d, %s, \"%s\", %v).",
			e.Timestamp, mangleName(e.Backend), escapeString(e.Target), e.Success)

	case AuditInstallAttempt, AuditInstallDone:
		return fmt.Sprintf("install_event(%d, /%s, \"%s\", %v).",
			e.Timestamp, e.EventType, escapeString(e.Target), e.Success)

	case AuditProcessStart, AuditProcessKilled, AuditProcessExit:
		return fmt.Sprintf("process_event(%d, /%s, \"%s\", %v, %d).",
			e.Timestamp, e.EventType, escapeString(e.Target), e.Success, e.DurationMs)

	default:
		return fmt.Sprintf("audit_event(%d, /%s, \"%s\", %v).",
			e.Timestamp, e.EventType, escapeString(e.Error), e.Success)
	}
}

// mangleName renders a name constant, falling back to /unknown.
func mangleName(s string) string {
	if s == "" {
		return "/unknown"
	}
	return "/" + s
}

func escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/10)

	for _, c := range s {
		switch c {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// ProofStart records that a backend pipeline began.
func (a *AuditLogger) ProofStart(requestID, backend, formulaID string) {
	a.Log(AuditEvent{
		EventType: AuditProofStart,
		RequestID: requestID,
		Backend:   backend,
		Target:    formulaID,
	})
}

// ProofComplete records the terminal status of a backend pipeline.
func (a *AuditLogger) ProofComplete(requestID, backend, formulaID, status string, duration time.Duration, errMsg string) {
	eventType := AuditProofComplete
	switch status {
	case "timeout":
		eventType = AuditProofTimeout
	case "error", "unsupported":
		eventType = AuditProofError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		RequestID:  requestID,
		Backend:    backend,
		Target:     formulaID,
		Status:     status,
		Success:    status == "success",
		DurationMs: duration.Milliseconds(),
		Error:      errMsg,
	})
}

// BackendProbe records an availability probe outcome.
func (a *AuditLogger) BackendProbe(backend, path string, available bool) {
	a.Log(AuditEvent{
		EventType: AuditBackendProbe,
		Backend:   backend,
		Target:    path,
		Success:   available,
	})
}

// InstallEvent records an auto-install attempt or its completion.
func (a *AuditLogger) InstallEvent(eventType AuditEventType, backends string, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType: eventType,
		Target:    backends,
		Success:   success,
		Error:     errMsg,
	})
}
