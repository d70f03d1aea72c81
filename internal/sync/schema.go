package sync

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Schema is the introspected destination collection schema: the set of legal
// field keys plus where (and in what shape) the location reference lives.
type Schema struct {
	CollectionID   string
	CollectionName string
	ValidKeys      []string

	// LocationFieldSlug is empty when no plausible location-code field was
	// found. LocationFieldIsReference distinguishes a reference field (wants
	// item ids) from a plain text field (wants the raw code string).
	LocationFieldSlug        string
	LocationFieldIsReference bool

	validSet map[string]struct{}
}

// Inspect fetches the destination collection's field definitions. Failure
// here is fatal to a sync run: without the field list nothing can be safely
// written.
func Inspect(ctx context.Context, store Store, collectionID string) (*Schema, error) {
	collection, err := store.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch collection structure: %w", err)
	}

	schema := &Schema{
		CollectionID:   collectionID,
		CollectionName: collection.DisplayName,
		validSet:       make(map[string]struct{}, len(collection.Fields)),
	}
	for _, field := range collection.Fields {
		key := field.Key()
		schema.ValidKeys = append(schema.ValidKeys, key)
		schema.validSet[key] = struct{}{}
	}

	// First pass: a field whose slug or display name mentions both
	// "location" and "code". First match in field order wins.
	for _, field := range collection.Fields {
		slug := strings.ToLower(field.Slug)
		name := strings.ToLower(field.DisplayName)
		hasLocation := strings.Contains(slug, "location") || strings.Contains(name, "location")
		hasCode := strings.Contains(slug, "code") || strings.Contains(name, "code")
		if !hasLocation || !hasCode {
			continue
		}
		if schema.LocationFieldSlug == "" {
			schema.LocationFieldSlug = field.Slug
			schema.LocationFieldIsReference = field.IsReference()
		} else {
			log.Printf("[schema] multiple location-code candidates in %q: keeping %q, ignoring %q",
				collectionID, schema.LocationFieldSlug, field.Slug)
		}
	}

	// Second pass: exact slug patterns.
	if schema.LocationFieldSlug == "" {
		for _, field := range collection.Fields {
			switch strings.ToLower(field.Slug) {
			case "location-code", "locationcode", "location_code":
				schema.LocationFieldSlug = field.Slug
				schema.LocationFieldIsReference = field.IsReference()
			}
			if schema.LocationFieldSlug != "" {
				break
			}
		}
	}

	if schema.LocationFieldSlug == "" {
		log.Printf("[schema] no location-code field found in collection %q", collectionID)
	}
	return schema, nil
}

// HasKey reports whether key is a legal field slug.
func (s *Schema) HasKey(key string) bool {
	_, ok := s.validSet[key]
	return ok
}

// MatchKey returns the schema slug a payload key should be written under: the
// key itself on an exact match, else the single valid key whose
// case/separator-insensitive form matches. Ambiguous or unknown keys do not
// match.
func (s *Schema) MatchKey(key string) (string, bool) {
	if s.HasKey(key) {
		return key, true
	}

	canon := canonicalKey(key)
	var match string
	count := 0
	for _, valid := range s.ValidKeys {
		if canonicalKey(valid) == canon {
			match = valid
			count++
		}
	}
	if count == 1 {
		return match, true
	}
	return "", false
}

// canonicalKey lower-cases and drops the -/_ separators so spellings like
// jobFamilyId, job_family_id and job-family-id compare equal.
func canonicalKey(key string) string {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, "-", "")
	key = strings.ReplaceAll(key, "_", "")
	return key
}
