package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidEntity indicates an entity reference without tenant, id or a
// known node type.
var ErrInvalidEntity = errors.New("invalid entity reference")

// EntityRef identifies the vector footprint of one content entity.
type EntityRef struct {
	TenantID string
	NodeType NodeType
	ID       string
}

// Document returns a reference to a document entity.
func Document(tenantID, id string) EntityRef {
	return EntityRef{TenantID: tenantID, NodeType: NodeDocument, ID: id}
}

// Resource returns a reference to a resource entity.
func Resource(tenantID, id string) EntityRef {
	return EntityRef{TenantID: tenantID, NodeType: NodeResource, ID: id}
}

func (e EntityRef) String() string {
	return e.TenantID + "/" + string(e.NodeType) + "/" + e.ID
}

// Validate reports a missing tenant or id, or an unknown node type.
func (e EntityRef) Validate() error {
	if e.TenantID == "" {
		return fmt.Errorf("%w: tenant id is required", ErrInvalidEntity)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: entity id is required", ErrInvalidEntity)
	}
	if err := e.NodeType.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}
	return nil
}

// Filter selects every point of the entity.
func (e EntityRef) Filter() Filter {
	return EntityFilter(e.TenantID, e.NodeType, e.ID)
}

// PointID returns the id of the point holding chunk seq.
func (e EntityRef) PointID(seq int) string {
	return PointID(e.TenantID, e.ID, seq)
}

// Stamp writes the tenant, node type and entity id into p, dropping the
// id key of the other node type.
func (e EntityRef) Stamp(p Payload) {
	p[KeyTenantID] = e.TenantID
	p[KeyNodeType] = string(e.NodeType)
	delete(p, KeyDocID)
	delete(p, KeyResourceID)
	p[e.NodeType.EntityKey()] = e.ID
}

// FetchEntity pages through every point of the entity and returns them
// ordered by seq.
func FetchEntity(ctx context.Context, s Store, e EntityRef, pageSize int) ([]Point, error) {
	points, err := ScrollAll(ctx, s, e.Filter(), pageSize)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Payload.Seq() < points[j].Payload.Seq()
	})
	return points, nil
}

// Rekey returns a copy of p moved into e: the id is derived from e and the
// point's seq, and the tenant and entity payload fields are rewritten.
// Every other payload field is kept.
func (e EntityRef) Rekey(p Point) Point {
	out := p.Clone()
	e.Stamp(out.Payload)
	out.ID = e.PointID(out.Payload.Seq())
	return out
}
