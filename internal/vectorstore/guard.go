package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ragindex/internal/logging"
	"go.uber.org/zap"
)

// TenantGuard enforces tenant scoping in front of any Store.
//
// Security guarantees:
//   - Delete, Scroll, Search and SetPayload require a single-valued tenantId condition
//   - Upsert requires every point payload to carry a tenantId
//   - SetPayload may not rewrite tenantId
//   - violations return ErrMissingTenant (fail closed), never an empty result
type TenantGuard struct {
	next   Store
	logger *logging.Logger
}

// NewTenantGuard wraps next. logger may be nil.
func NewTenantGuard(next Store, logger *logging.Logger) *TenantGuard {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &TenantGuard{next: next, logger: logger.Named("tenant_guard")}
}

func (g *TenantGuard) checkFilter(ctx context.Context, op string, filter Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	if _, ok := filter.TenantID(); !ok {
		g.logger.Warn(ctx, "rejected unscoped store call", zap.String("op", op))
		return fmt.Errorf("%s: %w", op, ErrMissingTenant)
	}
	return nil
}

// Upsert implements Store.
func (g *TenantGuard) Upsert(ctx context.Context, points []Point) error {
	for _, p := range points {
		if p.Payload.TenantID() == "" {
			g.logger.Warn(ctx, "rejected upsert of unscoped point", zap.String("point_id", p.ID))
			return fmt.Errorf("upsert point %s: %w", p.ID, ErrMissingTenant)
		}
	}
	return g.next.Upsert(ctx, points)
}

// Delete implements Store.
func (g *TenantGuard) Delete(ctx context.Context, filter Filter) error {
	if err := g.checkFilter(ctx, "delete", filter); err != nil {
		return err
	}
	return g.next.Delete(ctx, filter)
}

// Scroll implements Store.
func (g *TenantGuard) Scroll(ctx context.Context, filter Filter, offset string, limit int) (ScrollPage, error) {
	if err := g.checkFilter(ctx, "scroll", filter); err != nil {
		return ScrollPage{}, err
	}
	return g.next.Scroll(ctx, filter, offset, limit)
}

// Search implements Store.
func (g *TenantGuard) Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]ScoredPoint, error) {
	if err := g.checkFilter(ctx, "search", filter); err != nil {
		return nil, err
	}
	return g.next.Search(ctx, vector, filter, limit)
}

// SetPayload implements Store.
func (g *TenantGuard) SetPayload(ctx context.Context, filter Filter, payload Payload) error {
	if err := g.checkFilter(ctx, "set_payload", filter); err != nil {
		return err
	}
	if _, ok := payload[KeyTenantID]; ok {
		return fmt.Errorf("set_payload: %w: tenantId cannot be patched", ErrInvalidFilter)
	}
	return g.next.SetPayload(ctx, filter, payload)
}
