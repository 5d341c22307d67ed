package file

import (
	"encoding/json"
	"strings"

	"github.com/lexipoint/lexipoint/plugin/classifier"
	"github.com/lexipoint/lexipoint/store"
)

// document is the on-disk layout. Everything a knowledge point owns is
// embedded under it so the whole aggregate travels together.
type document struct {
	FormatVersion int              `json:"format_version"`
	UpdatedTs     int64            `json:"updated_ts"`
	NextID        int32            `json:"next_id"`
	Points        []*pointDocument `json:"points"`
}

func (doc *document) nextID() int32 {
	id := doc.NextID
	if id == 0 {
		id = 1
	}
	doc.NextID = id + 1
	return id
}

// clone copies the document header and point list. The points themselves are
// shared; callers clone any point they mutate.
func (doc *document) clone() *document {
	copied := *doc
	copied.Points = append([]*pointDocument(nil), doc.Points...)
	return &copied
}

func (doc *document) find(id int32) *pointDocument {
	for _, point := range doc.Points {
		if point.ID == id {
			return point
		}
	}
	return nil
}

func (doc *document) replace(updated *pointDocument) {
	for i, point := range doc.Points {
		if point.ID == updated.ID {
			doc.Points[i] = updated
			return
		}
	}
}

type pointDocument struct {
	ID      int32  `json:"id"`
	UID     string `json:"uid"`
	Version int32  `json:"version"`

	KeyPoint       string `json:"key_point"`
	Category       string `json:"category"`
	Subtype        string `json:"subtype"`
	Explanation    string `json:"explanation"`
	OriginalPhrase string `json:"original_phrase"`
	Correction     string `json:"correction"`

	MasteryLevel float64 `json:"mastery_level"`
	MistakeCount int32   `json:"mistake_count"`
	CorrectCount int32   `json:"correct_count"`

	CreatedTs    int64  `json:"created_ts"`
	LastSeenTs   int64  `json:"last_seen_ts"`
	NextReviewTs *int64 `json:"next_review_ts"`
	UpdatedTs    int64  `json:"updated_ts"`

	IsDeleted     bool   `json:"is_deleted"`
	DeletedTs     *int64 `json:"deleted_ts"`
	DeletedReason string `json:"deleted_reason"`

	Tags        []string          `json:"tags"`
	CustomNotes string            `json:"custom_notes"`
	Metadata    map[string]string `json:"metadata"`

	OriginalError *errorDocument     `json:"original_error"`
	Examples      []*exampleDocument `json:"examples"`
	Versions      []*versionDocument `json:"versions"`
}

type errorDocument struct {
	ID      int32 `json:"id"`
	PointID int32 `json:"point_id"`

	Sentence      string `json:"sentence"`
	LearnerAnswer string `json:"learner_answer"`
	CorrectAnswer string `json:"correct_answer"`
	CreatedTs     int64  `json:"created_ts"`
}

type exampleDocument struct {
	ID      int32 `json:"id"`
	PointID int32 `json:"point_id"`

	Sentence      string `json:"sentence"`
	LearnerAnswer string `json:"learner_answer"`
	CorrectAnswer string `json:"correct_answer"`
	Correct       bool   `json:"correct"`
	CreatedTs     int64  `json:"created_ts"`
}

type versionDocument struct {
	ID      int32 `json:"id"`
	PointID int32 `json:"point_id"`

	VersionNumber  int32             `json:"version_number"`
	ChangedFields  []string          `json:"changed_fields"`
	PreviousValues map[string]string `json:"previous_values"`
	ChangedTs      int64             `json:"changed_ts"`
}

func (point *pointDocument) clone() *pointDocument {
	copied := *point
	copied.Tags = append([]string(nil), point.Tags...)
	if point.Metadata != nil {
		copied.Metadata = make(map[string]string, len(point.Metadata))
		for k, v := range point.Metadata {
			copied.Metadata[k] = v
		}
	}
	if point.NextReviewTs != nil {
		ts := *point.NextReviewTs
		copied.NextReviewTs = &ts
	}
	if point.DeletedTs != nil {
		ts := *point.DeletedTs
		copied.DeletedTs = &ts
	}
	copied.Examples = append([]*exampleDocument(nil), point.Examples...)
	copied.Versions = append([]*versionDocument(nil), point.Versions...)
	return &copied
}

func (point *pointDocument) apply(update *store.UpdateKnowledgePoint) {
	if update.KeyPoint != nil {
		point.KeyPoint = *update.KeyPoint
	}
	if update.Category != nil {
		point.Category = string(*update.Category)
	}
	if update.Subtype != nil {
		point.Subtype = *update.Subtype
	}
	if update.Explanation != nil {
		point.Explanation = *update.Explanation
	}
	if update.OriginalPhrase != nil {
		point.OriginalPhrase = *update.OriginalPhrase
	}
	if update.Correction != nil {
		point.Correction = *update.Correction
	}
	if update.MasteryLevel != nil {
		point.MasteryLevel = *update.MasteryLevel
	}
	if update.MistakeCount != nil {
		point.MistakeCount = *update.MistakeCount
	}
	if update.CorrectCount != nil {
		point.CorrectCount = *update.CorrectCount
	}
	if update.LastSeenTs != nil {
		point.LastSeenTs = *update.LastSeenTs
	}
	if update.NextReviewTs != nil {
		ts := *update.NextReviewTs
		point.NextReviewTs = &ts
	}
	if update.IsDeleted != nil {
		point.IsDeleted = *update.IsDeleted
		if *update.IsDeleted {
			point.DeletedTs = update.DeletedTs
			if update.DeletedReason != nil {
				point.DeletedReason = *update.DeletedReason
			}
		} else {
			point.DeletedTs = nil
			point.DeletedReason = ""
		}
	}
	if update.Tags != nil {
		point.Tags = append([]string(nil), (*update.Tags)...)
	}
	if update.CustomNotes != nil {
		point.CustomNotes = *update.CustomNotes
	}
	if update.Metadata != nil {
		point.Metadata = make(map[string]string, len(*update.Metadata))
		for k, v := range *update.Metadata {
			point.Metadata[k] = v
		}
	}
	point.UpdatedTs = update.UpdatedTs
}

func (point *pointDocument) matches(find *store.FindKnowledgePoint) bool {
	if find.ID != nil && point.ID != *find.ID {
		return false
	}
	if find.UID != nil && point.UID != *find.UID {
		return false
	}
	if find.ExcludeDeleted && point.IsDeleted {
		return false
	}
	if find.DueBefore != nil {
		if point.NextReviewTs == nil || *point.NextReviewTs > *find.DueBefore {
			return false
		}
	}
	if find.Keyword != nil && !point.matchesKeyword(*find.Keyword) {
		return false
	}
	return true
}

// matchesKeyword mirrors the LIKE match of the SQL drivers: lowercase
// substring over the text columns plus the JSON-encoded tags.
func (point *pointDocument) matchesKeyword(keyword string) bool {
	needle := strings.ToLower(keyword)
	haystacks := []string{point.KeyPoint, point.Explanation, point.OriginalPhrase, point.Correction}
	if raw, err := json.Marshal(point.Tags); err == nil {
		haystacks = append(haystacks, string(raw))
	}
	for _, haystack := range haystacks {
		if strings.Contains(strings.ToLower(haystack), needle) {
			return true
		}
	}
	return false
}

func pointFromStore(point *store.KnowledgePoint) *pointDocument {
	doc := &pointDocument{
		ID:             point.ID,
		UID:            point.UID,
		Version:        point.Version,
		KeyPoint:       point.KeyPoint,
		Category:       string(point.Category),
		Subtype:        point.Subtype,
		Explanation:    point.Explanation,
		OriginalPhrase: point.OriginalPhrase,
		Correction:     point.Correction,
		MasteryLevel:   point.MasteryLevel,
		MistakeCount:   point.MistakeCount,
		CorrectCount:   point.CorrectCount,
		CreatedTs:      point.CreatedTs,
		LastSeenTs:     point.LastSeenTs,
		UpdatedTs:      point.UpdatedTs,
		IsDeleted:      point.IsDeleted,
		DeletedReason:  point.DeletedReason,
		Tags:           append([]string(nil), point.Tags...),
		CustomNotes:    point.CustomNotes,
	}
	if point.Metadata != nil {
		doc.Metadata = make(map[string]string, len(point.Metadata))
		for k, v := range point.Metadata {
			doc.Metadata[k] = v
		}
	}
	if point.NextReviewTs != nil {
		ts := *point.NextReviewTs
		doc.NextReviewTs = &ts
	}
	if point.DeletedTs != nil {
		ts := *point.DeletedTs
		doc.DeletedTs = &ts
	}
	return doc
}

func (point *pointDocument) toStore() *store.KnowledgePoint {
	converted := &store.KnowledgePoint{
		ID:             point.ID,
		UID:            point.UID,
		Version:        point.Version,
		KeyPoint:       point.KeyPoint,
		Category:       classifier.Category(point.Category),
		Subtype:        point.Subtype,
		Explanation:    point.Explanation,
		OriginalPhrase: point.OriginalPhrase,
		Correction:     point.Correction,
		MasteryLevel:   point.MasteryLevel,
		MistakeCount:   point.MistakeCount,
		CorrectCount:   point.CorrectCount,
		CreatedTs:      point.CreatedTs,
		LastSeenTs:     point.LastSeenTs,
		UpdatedTs:      point.UpdatedTs,
		IsDeleted:      point.IsDeleted,
		DeletedReason:  point.DeletedReason,
		Tags:           append([]string(nil), point.Tags...),
		CustomNotes:    point.CustomNotes,
	}
	if point.Metadata != nil {
		converted.Metadata = make(map[string]string, len(point.Metadata))
		for k, v := range point.Metadata {
			converted.Metadata[k] = v
		}
	}
	if point.NextReviewTs != nil {
		ts := *point.NextReviewTs
		converted.NextReviewTs = &ts
	}
	if point.DeletedTs != nil {
		ts := *point.DeletedTs
		converted.DeletedTs = &ts
	}
	return converted
}

func originalErrorFromStore(originalError *store.OriginalError) *errorDocument {
	return &errorDocument{
		ID:            originalError.ID,
		PointID:       originalError.PointID,
		Sentence:      originalError.Sentence,
		LearnerAnswer: originalError.LearnerAnswer,
		CorrectAnswer: originalError.CorrectAnswer,
		CreatedTs:     originalError.CreatedTs,
	}
}

func (originalError *errorDocument) toStore() *store.OriginalError {
	return &store.OriginalError{
		ID:            originalError.ID,
		PointID:       originalError.PointID,
		Sentence:      originalError.Sentence,
		LearnerAnswer: originalError.LearnerAnswer,
		CorrectAnswer: originalError.CorrectAnswer,
		CreatedTs:     originalError.CreatedTs,
	}
}

func exampleFromStore(example *store.ReviewExample) *exampleDocument {
	return &exampleDocument{
		ID:            example.ID,
		PointID:       example.PointID,
		Sentence:      example.Sentence,
		LearnerAnswer: example.LearnerAnswer,
		CorrectAnswer: example.CorrectAnswer,
		Correct:       example.Correct,
		CreatedTs:     example.CreatedTs,
	}
}

func (example *exampleDocument) toStore() *store.ReviewExample {
	return &store.ReviewExample{
		ID:            example.ID,
		PointID:       example.PointID,
		Sentence:      example.Sentence,
		LearnerAnswer: example.LearnerAnswer,
		CorrectAnswer: example.CorrectAnswer,
		Correct:       example.Correct,
		CreatedTs:     example.CreatedTs,
	}
}

func versionFromStore(record *store.VersionRecord) *versionDocument {
	return &versionDocument{
		ID:             record.ID,
		PointID:        record.PointID,
		VersionNumber:  record.VersionNumber,
		ChangedFields:  append([]string(nil), record.ChangedFields...),
		PreviousValues: copyValues(record.PreviousValues),
		ChangedTs:      record.ChangedTs,
	}
}

func (record *versionDocument) toStore() *store.VersionRecord {
	return &store.VersionRecord{
		ID:             record.ID,
		PointID:        record.PointID,
		VersionNumber:  record.VersionNumber,
		ChangedFields:  append([]string(nil), record.ChangedFields...),
		PreviousValues: copyValues(record.PreviousValues),
		ChangedTs:      record.ChangedTs,
	}
}

func copyValues(values map[string]string) map[string]string {
	if values == nil {
		return nil
	}
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return copied
}
