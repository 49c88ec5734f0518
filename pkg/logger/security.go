package logger

import (
	"context"
	"log/slog"
	"time"
)

// Security event types.
const (
	EventRateLimitExceeded = "rate_limit_exceeded"
	EventValidationFailed  = "validation_failed"
	EventBotDetected       = "bot_detected"
	EventLimiterDegraded   = "rate_limiter_degraded"
)

// SecurityEvent describes a rejected or suspicious visitor action.
type SecurityEvent struct {
	EventType string
	IPAddress string
	UserAgent string
	Reason    string
	Metadata  map[string]string
}

// SecurityLogger writes security events as structured log lines.
type SecurityLogger struct {
	logger *slog.Logger
}

func NewSecurityLogger(logger *slog.Logger) *SecurityLogger {
	return &SecurityLogger{logger: logger}
}

// Log writes event at WARN level.
func (sl *SecurityLogger) Log(ctx context.Context, event SecurityEvent) {
	if sl == nil || sl.logger == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("event_type", event.EventType),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	sl.logger.LogAttrs(ctx, slog.LevelWarn, "security_event", attrs...)
}
