package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/environmental-data-aggregation/internal/advisor"
	"github.com/i474232898/environmental-data-aggregation/internal/environment"
	"github.com/i474232898/environmental-data-aggregation/internal/query"
	"github.com/i474232898/environmental-data-aggregation/internal/region"
)

type fakeService struct {
	err      error
	lastText string
	lastReg  region.Region
}

func (f *fakeService) GetAggregatedState(_ context.Context, r region.Region) (environment.AggregatedState, error) {
	f.lastReg = r
	if f.err != nil {
		return environment.AggregatedState{}, f.err
	}
	return environment.AggregatedState{
		Region:         r,
		Readings:       advisor.CurrentReadings{SoilMoisturePct: 45, TemperatureC: 32},
		Recommendation: advisor.Recommendation{Condition: "soil moisture critically low", Urgency: advisor.UrgencyHigh},
		DataFreshness:  time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeService) Ask(_ context.Context, text string, r region.Region) (query.Answer, error) {
	f.lastText, f.lastReg = text, r
	if f.err != nil {
		return query.Answer{}, f.err
	}
	return query.Answer{Intent: "irrigation", Text: "Irrigation advice for " + r.Name, Effect: "filter=irrigation"}, nil
}

func newTestApp(svc *fakeService) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, svc, region.DefaultCatalog(), environment.NewSessions(svc, time.Hour))
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]any) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestRegions(t *testing.T) {
	app := newTestApp(&fakeService{})

	code, body := do(t, app, http.MethodGet, "/api/v1/regions", "")
	require.Equal(t, http.StatusOK, code)
	regions, ok := body["regions"].([]any)
	require.True(t, ok)
	assert.Len(t, regions, len(region.DefaultCatalog().All()))
}

func TestStateByName(t *testing.T) {
	svc := &fakeService{}
	app := newTestApp(svc)

	code, body := do(t, app, http.MethodGet, "/api/v1/state?region=darbhanga", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "darbhanga", svc.lastReg.ID)

	rec, ok := body["recommendation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "soil moisture critically low", rec["condition"])
	assert.Equal(t, "high", rec["urgency"])
}

func TestStateByCoordinates(t *testing.T) {
	svc := &fakeService{}
	app := newTestApp(svc)

	code, _ := do(t, app, http.MethodGet, "/api/v1/state?lat=26.15&lon=85.90", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "darbhanga", svc.lastReg.ID)
}

func TestStateStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		want   int
	}{
		{"no region", "/api/v1/state", nil, http.StatusBadRequest},
		{"lat without lon", "/api/v1/state?lat=26.1", nil, http.StatusBadRequest},
		{"lat out of range", "/api/v1/state?lat=91&lon=10", nil, http.StatusBadRequest},
		{"non-numeric", "/api/v1/state?lat=north&lon=10", nil, http.StatusBadRequest},
		{"null island", "/api/v1/state?lat=0&lon=0", nil, http.StatusBadRequest},
		{"unknown name", "/api/v1/state?region=atlantis", nil, http.StatusNotFound},
		{"no data", "/api/v1/state?region=delhi", fmt.Errorf("%w: all providers failed", environment.ErrNoData), http.StatusServiceUnavailable},
		{"unexpected", "/api/v1/state?region=delhi", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&fakeService{err: tt.err})
			code, body := do(t, app, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.want, code)
			assert.Equal(t, true, body["error"])
		})
	}
}

func TestNoDataMessage(t *testing.T) {
	app := newTestApp(&fakeService{err: environment.ErrNoData})

	code, body := do(t, app, http.MethodGet, "/api/v1/state?region=pune", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "no data available for this region", body["message"])
}

func TestAsk(t *testing.T) {
	svc := &fakeService{}
	app := newTestApp(svc)

	code, body := do(t, app, http.MethodPost, "/api/v1/ask", `{"question":"should I irrigate?","region":"Darbhanga"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "irrigation", body["intent"])
	assert.Equal(t, "Irrigation advice for Darbhanga", body["answer"])
	assert.Equal(t, "filter=irrigation", body["effect"])
	assert.Equal(t, "should I irrigate?", svc.lastText)
}

func TestAskValidation(t *testing.T) {
	app := newTestApp(&fakeService{})

	code, _ := do(t, app, http.MethodPost, "/api/v1/ask", `{"region":"delhi"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, app, http.MethodPost, "/api/v1/ask", `{"question":"aqi?"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, app, http.MethodPost, "/api/v1/ask", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSessions(t *testing.T) {
	app := newTestApp(&fakeService{})

	code, _ := do(t, app, http.MethodGet, "/api/v1/sessions/tab-1", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body := do(t, app, http.MethodPut, "/api/v1/sessions/tab-1/region", `{"region":"pune"}`)
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body["token"])
	token := body["token"]

	code, body = do(t, app, http.MethodGet, "/api/v1/sessions/tab-1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, token, body["token"])
	state, ok := body["state"].(map[string]any)
	require.True(t, ok)
	reg, ok := state["region"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "pune", reg["id"])

	code, _ = do(t, app, http.MethodPut, "/api/v1/sessions/tab-1/region", `{"lat":200,"lon":0}`)
	assert.Equal(t, http.StatusBadRequest, code)
}
