package store

import (
	"context"
)

// Driver is the storage backend contract. It is implemented by the file,
// sqlite and postgres backends and selected exactly once at process start;
// the store never branches on the backend per call.
//
// Identical operation sequences against any two drivers must yield identical
// externally observable knowledge-point state, ignoring backend-internal ids.
type Driver interface {
	Close() error

	// CreateKnowledgePoint writes the point, its original error and version
	// record #1 in one transaction and returns the stored point.
	CreateKnowledgePoint(ctx context.Context, create *KnowledgePoint, originalError *OriginalError, record *VersionRecord) (*KnowledgePoint, error)
	ListKnowledgePoints(ctx context.Context, find *FindKnowledgePoint) ([]*KnowledgePoint, error)
	// UpdateKnowledgePoint applies a field diff, appends the version record
	// and the optional review example in one transaction, guarded by the
	// expected version. A stale expected version yields a CONFLICT error and
	// no change.
	UpdateKnowledgePoint(ctx context.Context, update *UpdateKnowledgePoint) (*KnowledgePoint, error)
	// PurgeKnowledgePoint physically removes a point and all owned rows.
	// Administrative escape hatch only; normal removal is the soft delete.
	PurgeKnowledgePoint(ctx context.Context, id int32) error

	GetOriginalError(ctx context.Context, pointID int32) (*OriginalError, error)
	ListReviewExamples(ctx context.Context, find *FindReviewExample) ([]*ReviewExample, error)
	ListVersionRecords(ctx context.Context, find *FindVersionRecord) ([]*VersionRecord, error)
}
