package models

import "time"

// ExternalJob is a single record from the external recruiting feed. The feed
// does not guarantee any shape, so jobs stay as raw maps and the sync engine
// probes them through ordered accessor lists.
type ExternalJob map[string]interface{}

// FieldSet maps destination field keys to values for one item. Keys starting
// with InternalKeyPrefix carry data between the mapper and the reconciler and
// must never be sent to the destination store.
type FieldSet map[string]interface{}

// Internal-only FieldSet keys.
const (
	InternalKeyPrefix = "_"
	LocationRefKey    = "_location_reference_id"
	LocationCodeKey   = "_location_code_str"
)

// Clone returns a shallow copy of the field set.
func (f FieldSet) Clone() FieldSet {
	out := make(FieldSet, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Webflow field types that hold references to other collections' items.
const (
	FieldTypeItemRef    = "ItemRef"
	FieldTypeItemRefSet = "ItemRefSet"
	FieldTypeReference  = "Reference"
)

// CollectionField is one field definition from a collection schema.
type CollectionField struct {
	ID          string `json:"id,omitempty"`
	Slug        string `json:"slug"`
	DisplayName string `json:"displayName"`
	Type        string `json:"type"`
}

// IsReference reports whether the field expects item IDs rather than text.
func (f CollectionField) IsReference() bool {
	switch f.Type {
	case FieldTypeItemRef, FieldTypeItemRefSet, FieldTypeReference:
		return true
	}
	return false
}

// Key returns the slug, falling back to the field ID when the slug is empty.
func (f CollectionField) Key() string {
	if f.Slug != "" {
		return f.Slug
	}
	return f.ID
}

// Collection is the destination collection's metadata and schema.
type Collection struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"displayName"`
	Fields      []CollectionField `json:"fields"`
}

// Item is a destination CMS item. The sync engine only reads and patches
// items; it never invents identifiers.
type Item struct {
	ID         string   `json:"id"`
	IsDraft    bool     `json:"isDraft"`
	IsArchived bool     `json:"isArchived"`
	FieldData  FieldSet `json:"fieldData"`
}

// Name returns the item's name field, if any.
func (i Item) Name() string {
	if i.FieldData == nil {
		return ""
	}
	s, _ := i.FieldData["name"].(string)
	return s
}

// RequisitionID returns the item's requisition-id field, if any.
func (i Item) RequisitionID() string {
	if i.FieldData == nil {
		return ""
	}
	s, _ := i.FieldData["requisition-id"].(string)
	return s
}

// SyncSummary is the structured result of one reconciliation run.
type SyncSummary struct {
	Synced         int      `json:"synced"`
	Skipped        int      `json:"skipped"`
	Unarchived     int      `json:"unarchived"`
	Published      int      `json:"published"`
	Unpublished    int      `json:"unpublished"`
	Total          int      `json:"total"`
	CollectionID   string   `json:"collectionId"`
	CollectionName string   `json:"collectionName"`
	Errors         []string `json:"errors,omitempty"`
}

// JobPreview describes what a sync would do with one feed job.
type JobPreview struct {
	Name         string   `json:"name"`
	Location     string   `json:"location"`
	WillSync     bool     `json:"willSync"`
	MappedFields FieldSet `json:"mappedFields"`
}

// PreviewResult is the read-only counterpart of SyncSummary.
type PreviewResult struct {
	Total          int          `json:"total"`
	New            int          `json:"new"`
	Existing       int          `json:"existing"`
	Jobs           []JobPreview `json:"preview"`
	CollectionID   string       `json:"collectionId"`
	CollectionName string       `json:"collectionName"`
}

// Run status values.
const (
	RunStatusSuccess = "success"
	RunStatusFailure = "failure"
)

// Run trigger values.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// SyncRun is a persisted record of one sync execution.
type SyncRun struct {
	ID           string      `json:"id" bson:"_id"`
	Trigger      string      `json:"trigger" bson:"trigger"`
	Status       string      `json:"status" bson:"status"`
	StartedAt    time.Time   `json:"started_at" bson:"started_at"`
	FinishedAt   time.Time   `json:"finished_at" bson:"finished_at"`
	Summary      SyncSummary `json:"summary" bson:"summary"`
	ErrorMessage string      `json:"error_message,omitempty" bson:"error_message,omitempty"`
}
