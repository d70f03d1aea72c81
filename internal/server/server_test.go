package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oakline/job-sync-service/internal/config"
	"github.com/oakline/job-sync-service/internal/feed"
	"github.com/oakline/job-sync-service/internal/models"
	"github.com/oakline/job-sync-service/internal/storage"
	syncengine "github.com/oakline/job-sync-service/internal/sync"
	"github.com/oakline/job-sync-service/internal/webflow"
)

// stubStore is a canned destination store for handler tests.
type stubStore struct {
	collection    *models.Collection
	collectionErr error
	items         []models.Item
	itemsErr      error
	created       []models.FieldSet
	updateErr     error
	lastPatch     webflow.ItemPatch
}

func (s *stubStore) GetCollection(ctx context.Context, collectionID string) (*models.Collection, error) {
	if s.collectionErr != nil {
		return nil, s.collectionErr
	}
	return s.collection, nil
}

func (s *stubStore) ListItems(ctx context.Context, collectionID string) ([]models.Item, error) {
	return s.items, s.itemsErr
}

func (s *stubStore) CreateItemLive(ctx context.Context, collectionID string, fields models.FieldSet) (*models.Item, error) {
	s.created = append(s.created, fields)
	return &models.Item{ID: "new-item", FieldData: fields}, nil
}

func (s *stubStore) UpdateItemLive(ctx context.Context, collectionID, itemID string, patch webflow.ItemPatch) (*models.Item, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	s.lastPatch = patch
	return &models.Item{ID: itemID, FieldData: patch.FieldData}, nil
}

func (s *stubStore) UpdateItem(ctx context.Context, collectionID, itemID string, patch webflow.ItemPatch) (*models.Item, error) {
	return &models.Item{ID: itemID}, nil
}

func (s *stubStore) PublishItem(ctx context.Context, collectionID, itemID string) error {
	return nil
}

func (s *stubStore) UnpublishItem(ctx context.Context, collectionID, itemID string) error {
	return nil
}

func (s *stubStore) PublishSite(ctx context.Context, siteID string) error {
	return nil
}

// stubFeed returns canned jobs or a canned error.
type stubFeed struct {
	jobs []models.ExternalJob
	err  error
}

func (f *stubFeed) Fetch(ctx context.Context) ([]models.ExternalJob, error) {
	return f.jobs, f.err
}

func defaultCollection() *models.Collection {
	return &models.Collection{
		ID:          "jobs",
		DisplayName: "Open Positions",
		Fields: []models.CollectionField{
			{Slug: "name", DisplayName: "Name", Type: "PlainText"},
			{Slug: "requisition-id", DisplayName: "Requisition ID", Type: "PlainText"},
		},
	}
}

func newTestServer(store syncengine.Store, feedClient syncengine.Feed) (*Server, storage.RunStore) {
	webCfg := config.WebflowConfig{CollectionID: "jobs"}
	runs := storage.NewMemoryStore()
	engine := syncengine.NewEngine(store, feedClient, webCfg)
	runner := syncengine.NewRunner(engine, runs)
	return NewServer(config.ServerConfig{Port: 0}, webCfg, runner, store, runs), runs
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(&stubStore{}, &stubFeed{})

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestHandleSync_PostRunsAndRecords(t *testing.T) {
	store := &stubStore{collection: defaultCollection()}
	feedClient := &stubFeed{jobs: []models.ExternalJob{
		{"title": "Engineer", "requisitionId": "R1"},
	}}
	s, runs := newTestServer(store, feedClient)

	rec := httptest.NewRecorder()
	s.handleSync(rec, httptest.NewRequest(http.MethodPost, "/api/sync", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["runId"])
	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, float64(1), summary["synced"])
	assert.Len(t, store.created, 1)

	last, err := runs.LastRun(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, last.Status)
	assert.Equal(t, models.TriggerManual, last.Trigger)
}

func TestHandleSync_FeedOutageIsNotAServerError(t *testing.T) {
	store := &stubStore{collection: defaultCollection()}
	feedClient := &stubFeed{err: &feed.OutageError{
		Kind:    feed.OutageHTMLPage,
		Message: "The external API returned an HTML error page instead of JSON.",
	}}
	s, runs := newTestServer(store, feedClient)

	rec := httptest.NewRecorder()
	s.handleSync(rec, httptest.NewRequest(http.MethodPost, "/api/sync", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "HTML error page")

	// The failed run is still recorded.
	last, err := runs.LastRun(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, models.RunStatusFailure, last.Status)
}

func TestHandleSync_InfrastructureFailureIs500(t *testing.T) {
	store := &stubStore{collectionErr: errors.New("webflow 401")}
	s, _ := newTestServer(store, &stubFeed{})

	rec := httptest.NewRecorder()
	s.handleSync(rec, httptest.NewRequest(http.MethodPost, "/api/sync", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleSync_GetPreviews(t *testing.T) {
	store := &stubStore{
		collection: defaultCollection(),
		items: []models.Item{
			{ID: "item-1", FieldData: models.FieldSet{"name": "Engineer", "requisition-id": "R1"}},
		},
	}
	feedClient := &stubFeed{jobs: []models.ExternalJob{
		{"title": "Engineer", "requisitionId": "R1"},
		{"title": "Analyst"},
	}}
	s, _ := newTestServer(store, feedClient)

	rec := httptest.NewRecorder()
	s.handleSync(rec, httptest.NewRequest(http.MethodGet, "/api/sync", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	preview := body["preview"].(map[string]interface{})
	assert.Equal(t, float64(2), preview["total"])
	assert.Equal(t, float64(1), preview["new"])
	assert.Equal(t, float64(1), preview["existing"])
	// Previews never create items.
	assert.Empty(t, store.created)
}

func TestHandleSync_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(&stubStore{}, &stubFeed{})

	rec := httptest.NewRecorder()
	s.handleSync(rec, httptest.NewRequest(http.MethodDelete, "/api/sync", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleCollection(t *testing.T) {
	store := &stubStore{collection: defaultCollection()}
	s, _ := newTestServer(store, &stubFeed{})

	rec := httptest.NewRecorder()
	s.handleCollection(rec, httptest.NewRequest(http.MethodGet, "/api/collection", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	collection := body["collection"].(map[string]interface{})
	assert.Equal(t, "Open Positions", collection["displayName"])
	assert.ElementsMatch(t, []interface{}{"name", "requisition-id"}, body["validKeys"])
}

func TestHandleLocations_Unconfigured(t *testing.T) {
	s, _ := newTestServer(&stubStore{}, &stubFeed{})

	rec := httptest.NewRecorder()
	s.handleLocations(rec, httptest.NewRequest(http.MethodGet, "/api/locations", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])
}

func TestHandleVerify(t *testing.T) {
	store := &stubStore{
		collection: defaultCollection(),
		items: []models.Item{
			{ID: "a", FieldData: models.FieldSet{"name": "Live Job"}},
			{ID: "b", IsDraft: true, FieldData: models.FieldSet{"name": "Draft Job"}},
			{ID: "c", IsArchived: true, FieldData: models.FieldSet{"name": "Archived Job"}},
		},
	}
	s, _ := newTestServer(store, &stubFeed{})

	rec := httptest.NewRecorder()
	s.handleVerify(rec, httptest.NewRequest(http.MethodGet, "/api/verify", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(3), body["total"])
	assert.Equal(t, float64(1), body["live"])
	assert.Equal(t, float64(1), body["draft"])
	assert.Equal(t, float64(1), body["archived"])
}

func TestHandleItemUpdate(t *testing.T) {
	store := &stubStore{}
	s, _ := newTestServer(store, &stubFeed{})

	payload := bytes.NewBufferString(`{"fieldData":{"name":"Renamed Job"}}`)
	rec := httptest.NewRecorder()
	s.handleItemUpdate(rec, httptest.NewRequest(http.MethodPatch, "/api/items/item-1", payload))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])

	// The patch must force the item live.
	assert.NotNil(t, store.lastPatch.IsDraft)
	assert.False(t, *store.lastPatch.IsDraft)
	assert.Equal(t, "Renamed Job", store.lastPatch.FieldData["name"])
}

func TestHandleItemUpdate_Validation(t *testing.T) {
	s, _ := newTestServer(&stubStore{}, &stubFeed{})

	// Missing field data.
	rec := httptest.NewRecorder()
	s.handleItemUpdate(rec, httptest.NewRequest(http.MethodPatch, "/api/items/item-1",
		bytes.NewBufferString(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Malformed body.
	rec = httptest.NewRecorder()
	s.handleItemUpdate(rec, httptest.NewRequest(http.MethodPatch, "/api/items/item-1",
		bytes.NewBufferString(`{not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing item id.
	rec = httptest.NewRecorder()
	s.handleItemUpdate(rec, httptest.NewRequest(http.MethodPatch, "/api/items/",
		bytes.NewBufferString(`{"fieldData":{"name":"x"}}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Wrong method.
	rec = httptest.NewRecorder()
	s.handleItemUpdate(rec, httptest.NewRequest(http.MethodGet, "/api/items/item-1", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleItemUpdate_NotFound(t *testing.T) {
	store := &stubStore{updateErr: &webflow.APIError{Status: http.StatusNotFound, Body: "not found"}}
	s, _ := newTestServer(store, &stubFeed{})

	rec := httptest.NewRecorder()
	s.handleItemUpdate(rec, httptest.NewRequest(http.MethodPatch, "/api/items/missing",
		bytes.NewBufferString(`{"fieldData":{"name":"x"}}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRuns_Empty(t *testing.T) {
	s, _ := newTestServer(&stubStore{}, &stubFeed{})

	rec := httptest.NewRecorder()
	s.handleRuns(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(0), body["count"])
	assert.NotNil(t, body["runs"])
}

func TestHandleRuns_LimitParameter(t *testing.T) {
	s, runs := newTestServer(&stubStore{}, &stubFeed{})
	ctx := context.Background()
	for _, id := range []string{"run-1", "run-2", "run-3"} {
		assert.NoError(t, runs.RecordRun(ctx, models.SyncRun{ID: id}))
	}

	rec := httptest.NewRecorder()
	s.handleRuns(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=2", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["count"])
}

func TestHandleStatus(t *testing.T) {
	s, runs := newTestServer(&stubStore{}, &stubFeed{})

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", decodeBody(t, rec)["status"])

	assert.NoError(t, runs.RecordRun(context.Background(), models.SyncRun{
		ID:     "run-1",
		Status: models.RunStatusSuccess,
	}))

	rec = httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	body := decodeBody(t, rec)
	assert.Equal(t, models.RunStatusSuccess, body["status"])
	assert.NotNil(t, body["lastRun"])
}
