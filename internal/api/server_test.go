package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v5"

	"github.com/kestrelhw/vcnsim/internal/npu"
)

type fakePipeline struct {
	state npu.SystemState
	stats npu.Stats
}

func (f fakePipeline) State() npu.SystemState { return f.state }
func (f fakePipeline) Stats() npu.Stats       { return f.stats }

func newTestEcho(p StatusProvider) *echo.Echo {
	e := echo.New()
	NewServer(p).Register(e)
	return e
}

func doGet(t *testing.T, e *echo.Echo, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	e := newTestEcho(fakePipeline{})
	rec := doGet(t, e, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestStatusReflectsPipeline(t *testing.T) {
	t.Parallel()

	p := fakePipeline{
		state: npu.StateNormalOp,
		stats: npu.Stats{Cycles: 12345, State: "NORMAL_OP", Busy: true},
	}
	e := newTestEcho(p)
	rec := doGet(t, e, "/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var body StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.State != "NORMAL_OP" || !body.Busy || body.Cycles != 12345 {
		t.Fatalf("unexpected status: %+v", body)
	}
}

func TestStatsSnapshot(t *testing.T) {
	t.Parallel()

	p := fakePipeline{stats: npu.Stats{
		Cycles:         99,
		GroupsProduced: 7,
		MaxOccupancy:   64,
		State:          "DONE",
	}}
	e := newTestEcho(p)
	rec := doGet(t, e, "/v1/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var body npu.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Cycles != 99 || body.GroupsProduced != 7 || body.MaxOccupancy != 64 {
		t.Fatalf("unexpected stats: %+v", body)
	}
}
