package lims

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/labtrack/lims/pkg/common/config"
	"github.com/labtrack/lims/pkg/common/database"
	"github.com/labtrack/lims/pkg/common/logger"
	"github.com/labtrack/lims/pkg/common/models"
	"github.com/stretchr/testify/require"
)

const testOrigin = "http://lims.test"

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	events []models.Event
}

func (p *recordingPublisher) PublishEvent(_ context.Context, _ string, event models.Event) error {
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	t       *testing.T
	service *Service
	router  *mux.Router
	events  *recordingPublisher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	logger.Silence()

	db, err := database.Open(&config.Config{
		DatabaseDriver: "sqlite",
		SQLitePath:     filepath.Join(t.TempDir(), "lims.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	events := &recordingPublisher{}
	opts = append([]Option{WithPublisher(events), WithClock(func() time.Time { return fixedNow })}, opts...)
	svc := NewService(db, opts...)
	require.NoError(t, svc.Migrate(context.Background()))

	router := NewRouter(NewHandler(svc, testOrigin), RouterOptions{})
	return &fixture{t: t, service: svc, router: router, events: events}
}

func (f *fixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	f.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// create posts body and returns the API path of the new resource.
func (f *fixture) create(path string, body interface{}) string {
	f.t.Helper()
	rec := f.do(http.MethodPost, path, body)
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	loc := rec.Header().Get("Location")
	require.True(f.t, strings.HasPrefix(loc, testOrigin+APIPrefix+"/"), loc)
	return strings.TrimPrefix(loc, testOrigin)
}

func (f *fixture) getJSON(path string) map[string]interface{} {
	f.t.Helper()
	rec := f.do(http.MethodGet, path, nil)
	require.Equal(f.t, http.StatusOK, rec.Code, rec.Body.String())
	var out map[string]interface{}
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (f *fixture) idOf(path string) float64 {
	f.t.Helper()
	return f.getJSON(path)["id"].(float64)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}
