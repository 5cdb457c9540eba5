// internal/logging/context.go
package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 7)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if tenantID := TenantIDFromContext(ctx); tenantID != "" {
		fields = append(fields, zap.String("tenant.id", tenantID))
	}

	if entity := EntityFromContext(ctx); entity != nil {
		fields = append(fields, zap.String("entity.id", entity.ID))
		if entity.Type != "" {
			fields = append(fields, zap.String("entity.type", entity.Type))
		}
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

type tenantCtxKey struct{}
type entityCtxKey struct{}
type requestCtxKey struct{}

// Entity identifies the content entity an operation works on.
type Entity struct {
	ID   string
	Type string
}

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

// validateID validates a tenant, entity or request ID.
func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters", name)
	}
	return nil
}

// IsValidID reports whether id may be attached to a context as a tenant,
// entity or request ID.
func IsValidID(id string) bool {
	return validateID(id, "id") == nil
}

// TenantIDFromContext extracts the tenant ID from context.
func TenantIDFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(tenantCtxKey{}).(string); ok {
		return t
	}
	return ""
}

// WithTenantID adds the tenant ID to context.
// Invalid IDs are not attached, so log lines never carry unescaped caller input.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	if validateID(tenantID, "tenantID") != nil {
		return ctx
	}
	return context.WithValue(ctx, tenantCtxKey{}, tenantID)
}

// EntityFromContext extracts the entity from context.
func EntityFromContext(ctx context.Context) *Entity {
	if e, ok := ctx.Value(entityCtxKey{}).(*Entity); ok {
		return e
	}
	return nil
}

// WithEntity adds the entity to context. Entities with an invalid ID are not attached.
func WithEntity(ctx context.Context, entityID, entityType string) context.Context {
	if validateID(entityID, "entityID") != nil {
		return ctx
	}
	return context.WithValue(ctx, entityCtxKey{}, &Entity{ID: entityID, Type: entityType})
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRequestID adds request ID to context.
// Panics if requestID is empty or contains invalid characters.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if err := validateID(requestID, "requestID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}
