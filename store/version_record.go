package store

import (
	"context"
	"encoding/json"
	"strconv"
)

// VersionRecord is one entry of a knowledge point's append-only history.
// There is no API to edit or remove a record; version numbers are gapless,
// strictly increasing and never reused, even across delete/restore cycles.
type VersionRecord struct {
	ID      int32
	PointID int32

	VersionNumber  int32
	ChangedFields  []string
	PreviousValues map[string]string
	ChangedTs      int64
}

// FindVersionRecord is the find condition for version records.
type FindVersionRecord struct {
	PointID *int32
	Limit   *int
}

// ListVersionRecords returns a point's history, oldest first. The returned
// slice is a fresh copy on every call; the log itself stays owned by the
// aggregate's mutation path.
func (s *Store) ListVersionRecords(ctx context.Context, uid string) ([]*VersionRecord, error) {
	point, err := s.findFresh(ctx, uid)
	if err != nil {
		return nil, err
	}
	return withBackendRetry(ctx, func(ctx context.Context) ([]*VersionRecord, error) {
		return s.driver.ListVersionRecords(ctx, &FindVersionRecord{PointID: &point.ID})
	})
}

// fieldDiff accumulates the changed fields of one mutation together with
// their previous values, in a backend-independent string encoding.
type fieldDiff struct {
	fields   []string
	previous map[string]string
}

func newFieldDiff() *fieldDiff {
	return &fieldDiff{previous: map[string]string{}}
}

func (d *fieldDiff) add(field, previous string) {
	d.fields = append(d.fields, field)
	d.previous[field] = previous
}

func (d *fieldDiff) setString(field, old, new string) {
	if old != new {
		d.add(field, old)
	}
}

func (d *fieldDiff) setBool(field string, old, new bool) {
	if old != new {
		d.add(field, strconv.FormatBool(old))
	}
}

func (d *fieldDiff) setFloat(field string, old, new float64) {
	if old != new {
		d.add(field, strconv.FormatFloat(old, 'f', -1, 64))
	}
}

func (d *fieldDiff) setInt32(field string, old, new int32) {
	if old != new {
		d.add(field, strconv.FormatInt(int64(old), 10))
	}
}

func (d *fieldDiff) setInt64(field string, old, new int64) {
	if old != new {
		d.add(field, strconv.FormatInt(old, 10))
	}
}

func (d *fieldDiff) setNullableInt64(field string, old *int64, new int64) {
	if old == nil {
		d.add(field, "")
		return
	}
	d.setInt64(field, *old, new)
}

// setJSON records a structured previous value (tags, metadata) as canonical
// JSON. encoding/json sorts map keys, so the encoding is reproducible. The
// caller has already established that the field changed.
func (d *fieldDiff) setJSON(field string, old any) {
	encoded, err := json.Marshal(old)
	if err != nil {
		encoded = []byte("null")
	}
	d.add(field, string(encoded))
}

func (d *fieldDiff) empty() bool {
	return len(d.fields) == 0
}

func (d *fieldDiff) record(versionNumber int32, changedTs int64) *VersionRecord {
	return &VersionRecord{
		VersionNumber:  versionNumber,
		ChangedFields:  d.fields,
		PreviousValues: d.previous,
		ChangedTs:      changedTs,
	}
}
