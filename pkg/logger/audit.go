package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types
const (
	EventCodeVerified      = "code_verified"
	EventCodeRejected      = "code_rejected"
	EventClientBlocked     = "client_blocked"
	EventCodeCreated       = "code_created"
	EventCodeReset         = "code_reset"
	EventClientUnblocked   = "client_unblocked"
	EventAdminAuthFailure  = "admin_auth_failure"
	EventStaticCodesSeeded = "static_codes_seeded"
)

// AdmissionEvent describes one verification decision
type AdmissionEvent struct {
	EventType     string
	ClientID      string
	Code          string
	Success       bool
	FailureReason string
	RemainingUses int
}

// AuditLogger writes security-relevant events with a stable "audit" message
// so they can be filtered out of the general log stream
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogAdmission logs the outcome of an access code verification. Codes are
// masked so the log never holds a usable bearer value.
func (al *AuditLogger) LogAdmission(event AdmissionEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "admission"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.ClientID != "" {
		attrs = append(attrs, slog.String("client_id", event.ClientID))
	}
	if event.Code != "" {
		attrs = append(attrs, slog.String("code", MaskCode(event.Code)))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	if event.Success {
		attrs = append(attrs, slog.Int("remaining_uses", event.RemainingUses))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogAdminAction logs a management operation
func (al *AuditLogger) LogAdminAction(eventType, ipAddress string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "admin"),
		slog.String("event_type", eventType),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}

	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}

// LogAdminAuthFailure logs a rejected admin secret
func (al *AuditLogger) LogAdminAuthFailure(ipAddress, path, reason string) {
	al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit",
		slog.String("audit_type", "admin"),
		slog.String("event_type", EventAdminAuthFailure),
		slog.Bool("success", false),
		slog.String("ip_address", ipAddress),
		slog.String("path", path),
		slog.String("failure_reason", reason),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	)
}
