// Package sync is the reconciliation engine: it maps external job records
// onto the destination collection schema, matches them against existing
// items, and drives publish/archive state so the live site mirrors the feed.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/oakline/job-sync-service/internal/config"
	"github.com/oakline/job-sync-service/internal/models"
	"github.com/oakline/job-sync-service/internal/webflow"
)

// MaxStrippableFields caps how many rejected fields a create retry may strip.
const MaxStrippableFields = 3

// Store is the destination CMS collaborator. *webflow.Client satisfies it.
type Store interface {
	GetCollection(ctx context.Context, collectionID string) (*models.Collection, error)
	ListItems(ctx context.Context, collectionID string) ([]models.Item, error)
	CreateItemLive(ctx context.Context, collectionID string, fields models.FieldSet) (*models.Item, error)
	UpdateItemLive(ctx context.Context, collectionID, itemID string, patch webflow.ItemPatch) (*models.Item, error)
	UpdateItem(ctx context.Context, collectionID, itemID string, patch webflow.ItemPatch) (*models.Item, error)
	PublishItem(ctx context.Context, collectionID, itemID string) error
	UnpublishItem(ctx context.Context, collectionID, itemID string) error
	PublishSite(ctx context.Context, siteID string) error
}

// Feed provides the external job list.
type Feed interface {
	Fetch(ctx context.Context) ([]models.ExternalJob, error)
}

// Engine reconciles the external feed against the destination collection.
type Engine struct {
	store Store
	feed  Feed
	cfg   config.WebflowConfig
}

// NewEngine creates a reconciliation engine.
func NewEngine(store Store, feedClient Feed, cfg config.WebflowConfig) *Engine {
	return &Engine{store: store, feed: feedClient, cfg: cfg}
}

// Run executes a full sync. Schema failure aborts the run before any
// mutation; everything else degrades or is isolated per item. The returned
// summary is complete even when individual items failed.
func (e *Engine) Run(ctx context.Context) (*models.SyncSummary, error) {
	locations := NewResolver(e.store, e.cfg.LocationCollectionID).Build(ctx)

	schema, err := Inspect(ctx, e.store, e.cfg.CollectionID)
	if err != nil {
		return nil, err
	}

	jobs, err := e.feed.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	summary := &models.SyncSummary{
		Total:          len(jobs),
		CollectionID:   e.cfg.CollectionID,
		CollectionName: schema.CollectionName,
	}
	if len(jobs) == 0 {
		log.Println("[reconciler] no jobs found in external feed")
		return summary, nil
	}

	existing, err := e.store.ListItems(ctx, e.cfg.CollectionID)
	if err != nil {
		// Risk of duplicate creates is accepted here; a lower skipped count
		// makes the degradation visible in the summary.
		log.Printf("[reconciler] failed to list existing items: %v — proceeding as if the collection were empty", err)
		existing = nil
	}

	for _, job := range jobs {
		e.processJob(ctx, job, existing, locations, schema, summary)
	}

	e.sweep(ctx, existing, identitySet(jobs), summary)

	if (summary.Published > 0 || summary.Unpublished > 0) && e.cfg.SiteID != "" {
		if err := e.store.PublishSite(ctx, e.cfg.SiteID); err != nil {
			// Items already carry the right state; the site publish only
			// refreshes the rendered site.
			log.Printf("[reconciler] site publish failed (non-fatal): %v", err)
		}
	}

	log.Printf("[reconciler] sync completed: %d synced, %d skipped, %d unarchived, %d published, %d unpublished, %d error(s)",
		summary.Synced, summary.Skipped, summary.Unarchived, summary.Published, summary.Unpublished, len(summary.Errors))
	return summary, nil
}

// processJob runs the per-job state machine: create, unarchive+republish, or
// skip. Failures are recorded and never stop the remaining jobs.
func (e *Engine) processJob(ctx context.Context, job models.ExternalJob, existing []models.Item,
	locations LocationMap, schema *Schema, summary *models.SyncSummary) {

	name := jobName(job)
	match := findMatch(existing, jobRequisitionID(job), name)

	switch {
	case match == nil:
		fields := Map(job, locations)
		payload := buildPayload(fields, schema, name)
		if err := e.createWithRetry(ctx, payload, fields, schema, name); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Failed to create job %q: %v", name, err))
			return
		}
		summary.Synced++

	case match.IsArchived:
		fields := Map(job, locations)
		payload := buildPayload(fields, schema, name)
		patch := webflow.ItemPatch{
			FieldData:  payload,
			IsArchived: webflow.Bool(false),
			IsDraft:    webflow.Bool(false),
		}
		if _, err := e.store.UpdateItemLive(ctx, e.cfg.CollectionID, match.ID, patch); err != nil {
			log.Printf("[reconciler] live update failed for %q, falling back to staged update: %v", name, err)
			if _, err := e.store.UpdateItem(ctx, e.cfg.CollectionID, match.ID, patch); err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("Failed to unarchive item %q: %v", name, err))
				return
			}
		}
		// Keep the in-memory copy current so the sweep sees it live.
		match.IsArchived = false
		match.IsDraft = false
		summary.Unarchived++

	default:
		summary.Skipped++
	}
}

// createWithRetry creates an item as published, with one bounded retry when
// the store rejects fields: the location field rejected with a reference id
// in hand is retried in id-as-reference form; otherwise up to
// MaxStrippableFields rejected fields are stripped (never the location
// field) and the create retried once.
func (e *Engine) createWithRetry(ctx context.Context, payload, fields models.FieldSet, schema *Schema, name string) error {
	_, err := e.store.CreateItemLive(ctx, e.cfg.CollectionID, payload)
	if err == nil {
		return nil
	}

	var apiErr *webflow.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	invalid := apiErr.InvalidFields()
	if len(invalid) == 0 {
		return err
	}

	refID, _ := fields[models.LocationRefKey].(string)

	if schema.LocationFieldSlug != "" && contains(invalid, schema.LocationFieldSlug) && refID != "" {
		// The code string was rejected; the field is most likely a reference
		// that wants item ids.
		retry := payload.Clone()
		retry[schema.LocationFieldSlug] = []string{refID}
		if _, retryErr := e.store.CreateItemLive(ctx, e.cfg.CollectionID, retry); retryErr == nil {
			log.Printf("[reconciler] created %q after switching location field to reference form", name)
			return nil
		}
		return err
	}

	if len(invalid) <= MaxStrippableFields {
		retry := payload.Clone()
		for _, field := range invalid {
			if schema.LocationFieldSlug != "" && field == schema.LocationFieldSlug {
				// Never strip the location field, even when reported invalid.
				continue
			}
			delete(retry, field)
		}
		if _, retryErr := e.store.CreateItemLive(ctx, e.cfg.CollectionID, retry); retryErr == nil {
			log.Printf("[reconciler] created %q after stripping invalid fields: %s", name, strings.Join(invalid, ", "))
			return nil
		}
	}
	return err
}

// sweep aligns publish state of all existing, non-archived items with the
// feed: items that reappeared get published, items that vanished get
// unpublished (kept in the CMS, removed from the live site).
func (e *Engine) sweep(ctx context.Context, existing []models.Item, feedIDs identityIndex, summary *models.SyncSummary) {
	for i := range existing {
		item := &existing[i]
		if item.IsArchived {
			continue
		}

		label := item.Name()
		if label == "" {
			label = item.ID
		}

		if feedIDs.contains(item.RequisitionID(), item.Name()) {
			if !item.IsDraft {
				continue
			}
			if err := e.store.PublishItem(ctx, e.cfg.CollectionID, item.ID); err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("Failed to publish item %q: %v", label, err))
				continue
			}
			summary.Published++
			continue
		}

		if err := e.store.UnpublishItem(ctx, e.cfg.CollectionID, item.ID); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Failed to unpublish item %q: %v", label, err))
			continue
		}
		summary.Unpublished++
	}
}

// Preview computes the would-be sync outcome without mutating anything.
// Unlike Run, a schema failure here is tolerated: the preview just loses the
// collection name.
func (e *Engine) Preview(ctx context.Context) (*models.PreviewResult, error) {
	locations := NewResolver(e.store, e.cfg.LocationCollectionID).Build(ctx)

	collectionName := ""
	if schema, err := Inspect(ctx, e.store, e.cfg.CollectionID); err == nil {
		collectionName = schema.CollectionName
	} else {
		log.Printf("[reconciler] preview: %v", err)
	}

	jobs, err := e.feed.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := e.store.ListItems(ctx, e.cfg.CollectionID)
	if err != nil {
		log.Printf("[reconciler] preview: failed to list existing items: %v", err)
		existing = nil
	}

	result := &models.PreviewResult{
		Total:          len(jobs),
		CollectionID:   e.cfg.CollectionID,
		CollectionName: collectionName,
	}
	for _, job := range jobs {
		name := jobName(job)
		if name == "" {
			name = defaultJobName
		}
		match := findMatch(existing, jobRequisitionID(job), jobName(job))
		preview := models.JobPreview{
			Name:         name,
			Location:     locationLabel(job),
			WillSync:     match == nil,
			MappedFields: Map(job, locations),
		}
		if preview.WillSync {
			result.New++
		} else {
			result.Existing++
		}
		result.Jobs = append(result.Jobs, preview)
	}
	return result, nil
}

// buildPayload filters mapped fields down to what the destination schema
// accepts. Internal keys never leave the process; unknown keys are dropped
// after the fuzzy-match attempt. The location field is owned here: shaped
// once from the internal values and exempt from the drop rule.
func buildPayload(fields models.FieldSet, schema *Schema, name string) models.FieldSet {
	payload := models.FieldSet{}
	var dropped []string

	for key, value := range fields {
		if strings.HasPrefix(key, models.InternalKeyPrefix) {
			continue
		}
		if schema.LocationFieldSlug != "" && key == schema.LocationFieldSlug {
			continue // set below in the schema-appropriate shape
		}
		if slug, ok := schema.MatchKey(key); ok {
			payload[slug] = value
		} else {
			dropped = append(dropped, key)
		}
	}

	if schema.LocationFieldSlug != "" {
		refID, _ := fields[models.LocationRefKey].(string)
		codeStr, _ := fields[models.LocationCodeKey].(string)
		switch {
		case schema.LocationFieldIsReference && refID != "":
			payload[schema.LocationFieldSlug] = []string{refID}
		case !schema.LocationFieldIsReference && codeStr != "":
			payload[schema.LocationFieldSlug] = codeStr
		case refID != "":
			payload[schema.LocationFieldSlug] = []string{refID}
		}
	}

	// The name field is required by the store.
	if _, ok := payload["name"]; !ok {
		if v, ok := fields["name"]; ok {
			payload["name"] = v
		}
	}

	if len(dropped) > 0 {
		log.Printf("[reconciler] dropped %d field(s) for %q: %s", len(dropped), name, strings.Join(dropped, ", "))
	}
	return payload
}

// findMatch locates the destination item for a job: requisition-id match
// first, then name. Returns a pointer into items so state updates stick.
func findMatch(items []models.Item, reqID, name string) *models.Item {
	if reqID != "" {
		for i := range items {
			if items[i].RequisitionID() == reqID {
				return &items[i]
			}
		}
	}
	if name != "" {
		for i := range items {
			if items[i].Name() == name {
				return &items[i]
			}
		}
	}
	return nil
}

// identityIndex is the set of identity keys derived from the current feed.
type identityIndex map[string]struct{}

func identitySet(jobs []models.ExternalJob) identityIndex {
	ids := identityIndex{}
	for _, job := range jobs {
		if req := jobRequisitionID(job); req != "" {
			ids["req:"+req] = struct{}{}
		}
		if name := jobName(job); name != "" {
			ids["name:"+name] = struct{}{}
		}
	}
	return ids
}

func (ix identityIndex) contains(reqID, name string) bool {
	if reqID != "" {
		if _, ok := ix["req:"+reqID]; ok {
			return true
		}
	}
	if name != "" {
		if _, ok := ix["name:"+name]; ok {
			return true
		}
	}
	return false
}

// locationLabel produces a human-readable location for previews, tolerating
// both plain strings and nested objects.
func locationLabel(job models.ExternalJob) string {
	for _, key := range []string{"location", "address"} {
		switch v := job[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]interface{}:
			for _, sub := range []string{"name", "location_name", "address", "city", "location_description"} {
				if s := stringValue(v[sub]); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, entry := range list {
		if entry == s {
			return true
		}
	}
	return false
}
