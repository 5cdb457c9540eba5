package vectorstore

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Payload keys shared by every point.
const (
	KeyTenantID     = "tenantId"
	KeyNodeType     = "nodeType"
	KeyDocID        = "docId"
	KeyResourceID   = "resourceId"
	KeySeq          = "seq"
	KeyContent      = "content"
	KeyURL          = "url"
	KeyTitle        = "title"
	KeyResourceType = "resourceType"
	KeyProjectID    = "projectId"
)

// NodeType is the kind of content entity a point belongs to.
type NodeType string

const (
	NodeDocument NodeType = "document"
	NodeResource NodeType = "resource"
)

// Validate returns an error for unknown node types.
func (n NodeType) Validate() error {
	switch n {
	case NodeDocument, NodeResource:
		return nil
	default:
		return fmt.Errorf("unknown node type %q", string(n))
	}
}

// EntityKey returns the payload key holding the entity id for this node type.
func (n NodeType) EntityKey() string {
	if n == NodeResource {
		return KeyResourceID
	}
	return KeyDocID
}

// pointNamespace is the root of the name-based point ids.
var pointNamespace = uuid.MustParse("6f3c2b1e-9a4d-5c7e-8f10-2b3c4d5e6f70")

// PointID derives the id of the point holding chunk seq of entityID. Ids
// are name-based UUIDs of "<entityID>-<seq>" inside a per-tenant namespace,
// so equal entity ids owned by different tenants never overwrite each other.
// The same inputs always yield the same id, so upserts are idempotent.
func PointID(tenantID, entityID string, seq int) string {
	ns := uuid.NewSHA1(pointNamespace, []byte(tenantID))
	return uuid.NewSHA1(ns, []byte(entityID+"-"+strconv.Itoa(seq))).String()
}

// Payload is the metadata stored alongside a point's vector.
type Payload map[string]any

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String returns the value under key if it is a string.
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// TenantID returns the owning tenant.
func (p Payload) TenantID() string { return p.String(KeyTenantID) }

// NodeType returns the entity kind.
func (p Payload) NodeType() NodeType { return NodeType(p.String(KeyNodeType)) }

// Content returns the chunk text.
func (p Payload) Content() string { return p.String(KeyContent) }

// EntityID returns the docId or resourceId, depending on the node type.
func (p Payload) EntityID() string {
	if id := p.String(p.NodeType().EntityKey()); id != "" {
		return id
	}
	if id := p.String(KeyDocID); id != "" {
		return id
	}
	return p.String(KeyResourceID)
}

// Seq returns the chunk ordinal. Numeric values decoded from JSON or from
// the store arrive as different Go types.
func (p Payload) Seq() int {
	switch v := p[KeySeq].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

// Point is one embedded chunk.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Clone returns a deep copy of the vector and a shallow copy of the payload.
func (p Point) Clone() Point {
	vec := make([]float32, len(p.Vector))
	copy(vec, p.Vector)
	return Point{ID: p.ID, Vector: vec, Payload: p.Payload.Clone()}
}

// ScoredPoint is a search hit.
type ScoredPoint struct {
	Point
	Score float32
}

// EstimateSize returns the storage footprint of points: four bytes per
// vector component plus the payload JSON and the id.
func EstimateSize(points []Point) int64 {
	var total int64
	for _, p := range points {
		total += int64(4 * len(p.Vector))
		total += int64(len(p.ID))
		if b, err := json.Marshal(p.Payload); err == nil {
			total += int64(len(b))
		}
	}
	return total
}

// ContentPayload is the public shape of a retrieved chunk.
type ContentPayload struct {
	TenantID     string   `json:"tenantId"`
	NodeType     NodeType `json:"nodeType"`
	DocID        string   `json:"docId,omitempty"`
	ResourceID   string   `json:"resourceId,omitempty"`
	Seq          int      `json:"seq"`
	Content      string   `json:"content"`
	URL          string   `json:"url,omitempty"`
	Title        string   `json:"title,omitempty"`
	ResourceType string   `json:"resourceType,omitempty"`
	ProjectID    string   `json:"projectId,omitempty"`
}

// ToContentPayload maps a stored payload to its public shape.
func (p Payload) ToContentPayload() ContentPayload {
	return ContentPayload{
		TenantID:     p.TenantID(),
		NodeType:     p.NodeType(),
		DocID:        p.String(KeyDocID),
		ResourceID:   p.String(KeyResourceID),
		Seq:          p.Seq(),
		Content:      p.Content(),
		URL:          p.String(KeyURL),
		Title:        p.String(KeyTitle),
		ResourceType: p.String(KeyResourceType),
		ProjectID:    p.String(KeyProjectID),
	}
}
