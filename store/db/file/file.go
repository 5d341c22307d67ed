// Package file implements the storage driver backed by a single JSON
// document. The document is held in memory and rewritten atomically on every
// mutation; one process owns the file exclusively.
package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	engineerrors "github.com/lexipoint/lexipoint/internal/errors"
	"github.com/lexipoint/lexipoint/internal/profile"
	"github.com/lexipoint/lexipoint/store"
)

// formatVersion tags the persisted document layout.
const formatVersion = 1

// Driver is the file-backed store driver.
type Driver struct {
	profile *profile.Profile
	path    string

	mu  sync.RWMutex
	doc *document
}

// NewDriver loads the document at the profile DSN, creating it when absent.
func NewDriver(profile *profile.Profile) (store.Driver, error) {
	d := &Driver{
		profile: profile,
		path:    profile.DSN,
	}
	if err := d.load(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) Close() error {
	return nil
}

func (d *Driver) CreateKnowledgePoint(ctx context.Context, create *store.KnowledgePoint, originalError *store.OriginalError, record *store.VersionRecord) (*store.KnowledgePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, engineerrors.BackendUnavailable("file backend canceled", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Stage on a copy so a failed persist leaves the live document untouched.
	staged := d.doc.clone()

	point := pointFromStore(create)
	point.ID = staged.nextID()
	point.OriginalError = originalErrorFromStore(originalError)
	point.OriginalError.ID = staged.nextID()
	point.OriginalError.PointID = point.ID

	version := versionFromStore(record)
	version.ID = staged.nextID()
	version.PointID = point.ID
	point.Versions = append(point.Versions, version)

	staged.Points = append(staged.Points, point)
	if err := d.persist(staged); err != nil {
		return nil, err
	}
	d.doc = staged
	return point.toStore(), nil
}

func (d *Driver) ListKnowledgePoints(ctx context.Context, find *store.FindKnowledgePoint) ([]*store.KnowledgePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, engineerrors.BackendUnavailable("file backend canceled", err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	list := make([]*store.KnowledgePoint, 0)
	for _, point := range d.doc.Points {
		if !point.matches(find) {
			continue
		}
		list = append(list, point.toStore())
		if find.Limit != nil && len(list) >= *find.Limit {
			break
		}
	}
	return list, nil
}

func (d *Driver) UpdateKnowledgePoint(ctx context.Context, update *store.UpdateKnowledgePoint) (*store.KnowledgePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, engineerrors.BackendUnavailable("file backend canceled", err)
	}
	if update.Record == nil {
		return nil, engineerrors.InvalidArgument("update requires a version record")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	point := d.doc.find(update.ID)
	if point == nil {
		return nil, engineerrors.NotFound("knowledge point %d not found", update.ID)
	}
	if point.Version != update.ExpectedVersion {
		return nil, engineerrors.Conflict("knowledge point %d is at version %d, expected %d", update.ID, point.Version, update.ExpectedVersion)
	}

	// The staged copy is the transaction scope: apply everything there,
	// persist, then swap it in. A failed persist keeps the live document at
	// the expected version so the caller can retry cleanly.
	staged := d.doc.clone()
	updated := point.clone()
	updated.apply(update)
	updated.Version = update.Record.VersionNumber

	version := versionFromStore(update.Record)
	version.ID = staged.nextID()
	version.PointID = updated.ID
	updated.Versions = append(updated.Versions, version)

	if update.Example != nil {
		example := exampleFromStore(update.Example)
		example.ID = staged.nextID()
		example.PointID = updated.ID
		updated.Examples = append(updated.Examples, example)
	}

	staged.replace(updated)
	if err := d.persist(staged); err != nil {
		return nil, err
	}
	d.doc = staged
	return updated.toStore(), nil
}

func (d *Driver) PurgeKnowledgePoint(ctx context.Context, id int32) error {
	if err := ctx.Err(); err != nil {
		return engineerrors.BackendUnavailable("file backend canceled", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	kept := make([]*pointDocument, 0, len(d.doc.Points))
	found := false
	for _, point := range d.doc.Points {
		if point.ID == id {
			found = true
			continue
		}
		kept = append(kept, point)
	}
	if !found {
		return engineerrors.NotFound("knowledge point %d not found", id)
	}

	staged := d.doc.clone()
	staged.Points = kept
	if err := d.persist(staged); err != nil {
		return err
	}
	d.doc = staged
	return nil
}

func (d *Driver) GetOriginalError(ctx context.Context, pointID int32) (*store.OriginalError, error) {
	if err := ctx.Err(); err != nil {
		return nil, engineerrors.BackendUnavailable("file backend canceled", err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	point := d.doc.find(pointID)
	if point == nil || point.OriginalError == nil {
		return nil, engineerrors.NotFound("original error for point %d not found", pointID)
	}
	return point.OriginalError.toStore(), nil
}

func (d *Driver) ListReviewExamples(ctx context.Context, find *store.FindReviewExample) ([]*store.ReviewExample, error) {
	if err := ctx.Err(); err != nil {
		return nil, engineerrors.BackendUnavailable("file backend canceled", err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	list := make([]*store.ReviewExample, 0)
	for _, point := range d.doc.Points {
		if find.PointID != nil && point.ID != *find.PointID {
			continue
		}
		for _, example := range point.Examples {
			list = append(list, example.toStore())
			if find.Limit != nil && len(list) >= *find.Limit {
				return list, nil
			}
		}
	}
	return list, nil
}

func (d *Driver) ListVersionRecords(ctx context.Context, find *store.FindVersionRecord) ([]*store.VersionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, engineerrors.BackendUnavailable("file backend canceled", err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	list := make([]*store.VersionRecord, 0)
	for _, point := range d.doc.Points {
		if find.PointID != nil && point.ID != *find.PointID {
			continue
		}
		for _, version := range point.Versions {
			list = append(list, version.toStore())
			if find.Limit != nil && len(list) >= *find.Limit {
				return list, nil
			}
		}
	}
	return list, nil
}

func (d *Driver) load() error {
	raw, err := os.ReadFile(d.path)
	if os.IsNotExist(err) {
		d.doc = &document{FormatVersion: formatVersion, NextID: 1}
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read document %s", d.path)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errors.Wrapf(err, "failed to parse document %s", d.path)
	}
	if doc.FormatVersion != formatVersion {
		return errors.Errorf("unsupported document format version %d", doc.FormatVersion)
	}
	d.doc = &doc
	return nil
}

// persist writes the staged document atomically: temp file in the same
// directory, then rename. Must be called with the write lock held; the caller
// swaps doc into place only after persist succeeds.
func (d *Driver) persist(doc *document) error {
	doc.FormatVersion = formatVersion
	doc.UpdatedTs = time.Now().Unix()

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return engineerrors.BackendUnavailable("failed to encode document", err)
	}

	dir := filepath.Dir(d.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(d.path)+".tmp-*")
	if err != nil {
		return engineerrors.BackendUnavailable("failed to create temp document", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return engineerrors.BackendUnavailable("failed to write temp document", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return engineerrors.BackendUnavailable("failed to close temp document", err)
	}
	if err := os.Rename(tmpPath, d.path); err != nil {
		os.Remove(tmpPath)
		return engineerrors.BackendUnavailable("failed to replace document", err)
	}
	return nil
}
