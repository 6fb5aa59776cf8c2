package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"rightshub.io/internal/obs"
)

type ctxKey string

const (
	requestIDKey ctxKey = "audit_request_id"
	actorKey     ctxKey = "audit_actor_id"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithActor attaches the acting principal's identifier to the context.
func WithActor(ctx context.Context, actorID string) context.Context {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey, actorID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// ActorFromContext returns the acting principal id, if one was attached.
func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(actorKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if actor := ActorFromContext(ctx); actor != "" {
		entry["actor_id"] = actor
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
