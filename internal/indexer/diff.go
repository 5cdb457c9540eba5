package indexer

import (
	"fmt"

	"github.com/fyrsmithlabs/ragindex/internal/vectorstore"
)

// reservedKeys are owned by the indexer and never taken from caller metadata.
var reservedKeys = []string{
	vectorstore.KeyTenantID,
	vectorstore.KeyNodeType,
	vectorstore.KeyDocID,
	vectorstore.KeyResourceID,
	vectorstore.KeySeq,
	vectorstore.KeyContent,
}

// Diff is the plan of one indexing run.
//
// Points holds the complete new point set in seq order. Reused points carry
// the stored vector; the rest have a nil vector until Fill is called with
// one vector per entry of ToEmbed.
type Diff struct {
	Points []vectorstore.Point
	// ToEmbed lists the distinct chunk texts without a reusable vector,
	// in first-occurrence order.
	ToEmbed []string
	// Reused counts points whose vector was copied from the store.
	Reused int
	// Existing counts the stored points that the run replaces.
	Existing int

	slots map[string][]int
}

// ComputeDiff plans the convergence of an entity from its existing points
// to chunks. Chunks are matched by exact text; position is irrelevant.
func ComputeDiff(entity vectorstore.EntityRef, chunks []string, existing []vectorstore.Point, metadata vectorstore.Payload) *Diff {
	lookup := make(map[string][]float32, len(existing))
	for _, p := range existing {
		content := p.Payload.Content()
		if _, seen := lookup[content]; !seen && len(p.Vector) > 0 {
			lookup[content] = p.Vector
		}
	}

	d := &Diff{
		Points:   make([]vectorstore.Point, len(chunks)),
		Existing: len(existing),
		slots:    make(map[string][]int),
	}
	for i, chunk := range chunks {
		d.Points[i] = vectorstore.Point{
			ID:      entity.PointID(i),
			Payload: buildPayload(entity, metadata, i, chunk),
		}
		if vec, ok := lookup[chunk]; ok {
			d.Points[i].Vector = copyVector(vec)
			d.Reused++
			continue
		}
		if _, queued := d.slots[chunk]; !queued {
			d.ToEmbed = append(d.ToEmbed, chunk)
		}
		d.slots[chunk] = append(d.slots[chunk], i)
	}
	return d
}

// Fill attaches freshly embedded vectors, one per ToEmbed entry.
func (d *Diff) Fill(vectors [][]float32) error {
	if len(vectors) != len(d.ToEmbed) {
		return fmt.Errorf("expected %d vectors, got %d", len(d.ToEmbed), len(vectors))
	}
	for i, text := range d.ToEmbed {
		if len(vectors[i]) == 0 {
			return fmt.Errorf("empty vector for chunk %d", i)
		}
		for _, slot := range d.slots[text] {
			d.Points[slot].Vector = copyVector(vectors[i])
		}
	}
	return nil
}

// Embedded counts the points that received a new vector.
func (d *Diff) Embedded() int {
	return len(d.Points) - d.Reused
}

func buildPayload(entity vectorstore.EntityRef, metadata vectorstore.Payload, seq int, content string) vectorstore.Payload {
	p := make(vectorstore.Payload, len(metadata)+5)
	for k, v := range metadata {
		p[k] = v
	}
	for _, k := range reservedKeys {
		delete(p, k)
	}
	entity.Stamp(p)
	p[vectorstore.KeySeq] = seq
	p[vectorstore.KeyContent] = content
	return p
}

func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
