package sync

import (
	"context"
	"log"
	"regexp"
	"strings"

	"github.com/oakline/job-sync-service/internal/models"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// LocationMap maps location-code strings to location item IDs. Every code is
// stored under several case/whitespace variants so resolution is a handful of
// direct lookups instead of a scan.
type LocationMap map[string]string

// Register stores code under its original, lower-cased, trimmed and
// whitespace-stripped forms (derived forms also lower-cased). Derived
// variants never overwrite an existing entry, so when two codes collide
// after normalization the exact form keeps winning.
func (m LocationMap) Register(code, id string) {
	if code == "" || id == "" {
		return
	}
	m[code] = id

	trimmed := strings.TrimSpace(code)
	stripped := whitespaceRE.ReplaceAllString(code, "")
	for _, variant := range []string{
		strings.ToLower(code),
		trimmed,
		strings.ToLower(trimmed),
		stripped,
		strings.ToLower(stripped),
	} {
		if _, exists := m[variant]; !exists {
			m[variant] = id
		}
	}
}

// Resolve tries the candidate forms in order: exact, lower-cased, trimmed,
// whitespace-stripped. The first hit wins.
func (m LocationMap) Resolve(code string) (string, bool) {
	trimmed := strings.TrimSpace(code)
	stripped := whitespaceRE.ReplaceAllString(code, "")
	for _, candidate := range []string{
		code,
		strings.ToLower(code),
		trimmed,
		strings.ToLower(trimmed),
		stripped,
		strings.ToLower(stripped),
	} {
		if id, ok := m[candidate]; ok {
			return id, true
		}
	}
	return "", false
}

// Resolver builds the LocationMap from the locations collection.
type Resolver struct {
	store        Store
	collectionID string
}

// NewResolver creates a resolver for the given locations collection.
func NewResolver(store Store, collectionID string) *Resolver {
	return &Resolver{store: store, collectionID: collectionID}
}

// Build fetches all location items and registers each item's code. Location
// fetch failures degrade to an empty map: jobs simply sync without a
// location reference, the run itself continues.
func (r *Resolver) Build(ctx context.Context) LocationMap {
	locations := LocationMap{}

	if r.collectionID == "" {
		log.Println("[locations] location collection not configured, skipping location reference mapping")
		return locations
	}

	// The schema tells us which field carries the code when the name field
	// is empty. Losing it is not fatal; the flat fallbacks still apply.
	var codeField string
	if collection, err := r.store.GetCollection(ctx, r.collectionID); err == nil {
		codeField = findCodeField(collection.Fields)
	} else {
		log.Printf("[locations] failed to fetch location collection schema: %v", err)
	}

	items, err := r.store.ListItems(ctx, r.collectionID)
	if err != nil {
		log.Printf("[locations] failed to fetch locations: %v — continuing without location references", err)
		return locations
	}

	registered := 0
	for _, item := range items {
		code := locationCode(item, codeField)
		if code == "" || item.ID == "" {
			log.Printf("[locations] item %q has no resolvable location code, skipping", item.ID)
			continue
		}
		locations.Register(strings.TrimSpace(code), item.ID)
		registered++
	}

	log.Printf("[locations] mapped %d of %d location items", registered, len(items))
	return locations
}

// locationCode reads an item's code: the name field is the authoritative
// source, then the introspected code field, then flat fallbacks.
func locationCode(item models.Item, codeField string) string {
	if name := item.Name(); name != "" {
		return name
	}
	if codeField != "" {
		if s, _ := item.FieldData[codeField].(string); s != "" {
			return s
		}
	}
	for _, key := range []string{"code", "location-code", "location_code"} {
		if s, _ := item.FieldData[key].(string); s != "" {
			return s
		}
	}
	return ""
}

// findCodeField picks the schema field that likely holds the location code.
func findCodeField(fields []models.CollectionField) string {
	for _, f := range fields {
		slug := strings.ToLower(f.Slug)
		name := strings.ToLower(f.DisplayName)
		if strings.Contains(slug, "code") || strings.Contains(name, "code") {
			return f.Slug
		}
	}
	for _, f := range fields {
		if f.Slug == "name" || f.Slug == "code" {
			return f.Slug
		}
	}
	return ""
}
