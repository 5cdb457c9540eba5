// Package vectorstore defines the point model and the capability interface
// over a point-based vector database.
//
// # Points
//
// A point is one chunk of one entity: a deterministic id, a dense vector and
// a flat payload. The payload always carries tenantId, nodeType, the entity
// key (docId or resourceId), seq and content. PointID derives the id from
// tenant, entity and seq, so re-indexing the same chunk overwrites in place.
//
// # Tenant scoping
//
// Every read and every destructive write takes a Filter. Filters without a
// tenantId equality condition are rejected by TenantGuard with
// ErrMissingTenant:
//
//	store := vectorstore.NewTenantGuard(vectorstore.NewMemoryStore(), logger)
//
//	_, err := store.Search(ctx, vec, vectorstore.Filter{}, 5)
//	// errors.Is(err, vectorstore.ErrMissingTenant) == true
//
//	hits, err := store.Search(ctx, vec, vectorstore.TenantFilter("acme"), 5)
//
// # Backends
//
// ChromemStore keeps points in an embedded chromem-go collection. With a
// Path it persists to disk and quarantines collections chromem cannot load
// (see NewResilientChromemDB):
//
//	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
//	    Path:      "~/.config/ragindex/vectors",
//	    Dimension: 384,
//	}, logger)
//
// The Qdrant backend lives in package qdrant.
package vectorstore
