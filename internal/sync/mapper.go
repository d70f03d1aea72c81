package sync

import (
	"strconv"
	"strings"
	"time"

	"github.com/oakline/job-sync-service/internal/models"
)

// defaultJobName is used when a job carries no recognizable title.
const defaultJobName = "Untitled Job"

// Map converts one external job record into destination field values. Every
// logical attribute is probed through an ordered list of key spellings and
// emitted only when non-empty; the title always resolves to something. The
// extracted location code (and its resolved item id, when the map knows it)
// travel under internal-only keys so the reconciler can shape the location
// field against the live schema.
//
// Map is pure: it reads the job and the map, touches nothing else.
func Map(job models.ExternalJob, locations LocationMap) models.FieldSet {
	fields := models.FieldSet{}

	name := firstNonEmpty(job, "title", "jobTitle", "name", "position")
	if name == "" {
		name = defaultJobName
	}
	fields["name"] = name

	setIfPresent(fields, "requisition-id",
		firstNonEmpty(job, "requisitionId", "requisition_id", "requisition-id"))

	if raw := firstNonEmpty(job, "creationDate", "creation_date", "creation-date", "createdAt", "created_at"); raw != "" {
		fields["creation-date"] = normalizeDate(raw)
	}

	setIfPresent(fields, "description-2",
		firstNonEmpty(job, "description", "description2", "description_2", "description-2", "secondaryDescription", "secondary_description"))

	// Job family lives nested under job_family/jobFamily in most feeds; the
	// id is string-coerced because the destination schema expects text.
	famID := nested(job, "job_family", "job_family_id")
	if famID == "" {
		famID = nested(job, "jobFamily", "jobFamilyId")
	}
	if famID == "" {
		famID = firstNonEmpty(job, "jobFamilyId", "job_family_id", "job-family-id")
	}
	setIfPresent(fields, "job-family-id", famID)

	famName := nested(job, "job_family", "job_family_name")
	if famName == "" {
		famName = nested(job, "jobFamily", "jobFamilyName")
	}
	if famName == "" {
		famName = firstNonEmpty(job, "jobFamilyName", "job_family_name", "job-family-name")
	}
	if famName == "" {
		famName = nested(job, "jobFamily", "name")
	}
	setIfPresent(fields, "job-family-name", famName)

	setIfPresent(fields, "job-schedule",
		firstNonEmpty(job, "jobSchedule", "job_schedule", "job-schedule", "schedule"))
	setIfPresent(fields, "job-shift",
		firstNonEmpty(job, "jobShift", "job_shift", "job-shift", "shift"))

	locDesc := firstNonEmpty(job, "locationDescription", "location_description", "location-description")
	if locDesc == "" {
		locDesc = nested(job, "location", "description")
	}
	setIfPresent(fields, "location-description", locDesc)

	locID := firstNonEmpty(job, "locationId", "location_id", "location-id")
	if locID == "" {
		locID = nested(job, "location", "id")
	}
	setIfPresent(fields, "location-id", locID)

	locName := firstNonEmpty(job, "locationName", "location_name", "location-name")
	if locName == "" {
		locName = nested(job, "location", "name")
	}
	setIfPresent(fields, "location-name", locName)

	setIfPresent(fields, "requisition-number",
		firstNonEmpty(job, "requisitionNumber", "requisition_number", "requisition-number", "reqNumber", "req_number"))
	setIfPresent(fields, "short-description",
		firstNonEmpty(job, "shortDescription", "short_description", "short-description", "summary"))
	setIfPresent(fields, "state", firstNonEmpty(job, "state", "status"))

	// Location code: the nested location object wins over flat spellings.
	code := nested(job, "location", "location_code")
	if code == "" {
		code = nested(job, "location", "locationCode")
	}
	if code == "" {
		code = firstNonEmpty(job, "locationCode", "location_code", "location-code")
	}
	if code = strings.TrimSpace(code); code != "" {
		fields[models.LocationCodeKey] = code
		if id, ok := locations.Resolve(code); ok {
			fields[models.LocationRefKey] = id
		}
	}

	return fields
}

// jobRequisitionID extracts the job's requisition id for identity matching.
func jobRequisitionID(job models.ExternalJob) string {
	return firstNonEmpty(job, "requisitionId", "requisition_id", "requisition-id")
}

// jobName extracts the job's name for identity matching. Narrower than the
// title fallback chain: "position" is a display nicety, not an identity.
func jobName(job models.ExternalJob) string {
	return firstNonEmpty(job, "title", "jobTitle", "name")
}

// firstNonEmpty returns the first non-empty value among the given keys,
// string-coercing scalars.
func firstNonEmpty(job models.ExternalJob, keys ...string) string {
	for _, key := range keys {
		if s := stringValue(job[key]); s != "" {
			return s
		}
	}
	return ""
}

// nested reads objKey.key when objKey holds a sub-object.
func nested(job models.ExternalJob, objKey, key string) string {
	if obj, ok := job[objKey].(map[string]interface{}); ok {
		return stringValue(obj[key])
	}
	return ""
}

// stringValue coerces JSON scalars to strings. Objects and arrays yield "".
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func setIfPresent(fields models.FieldSet, key, value string) {
	if value != "" {
		fields[key] = value
	}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	time.RFC1123,
	time.RFC1123Z,
}

// normalizeDate returns the value as an ISO-8601 timestamp when it parses as
// a date, otherwise the raw input passes through unchanged.
func normalizeDate(raw string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return raw
}
