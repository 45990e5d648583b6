package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labrelay/internal/agent"
	"labrelay/internal/domain"
	"labrelay/internal/transport"
)

type fakeController struct {
	discover    agent.DiscoverResult
	discoverErr error
	executed    []domain.CommandRequest
	result      domain.CommandResult
	resources   []string
	listErr     error
}

func (f *fakeController) Discover(context.Context) (agent.DiscoverResult, error) {
	return f.discover, f.discoverErr
}

func (f *fakeController) Execute(_ context.Context, req domain.CommandRequest) domain.CommandResult {
	f.executed = append(f.executed, req)
	return f.result
}

func (f *fakeController) Liveness(context.Context) agent.Status {
	return agent.Status{Status: "running", TransportStatus: "ok", Resources: len(f.resources)}
}

func (f *fakeController) Resources(context.Context) ([]string, error) {
	return f.resources, f.listErr
}

func serve(ctl Controller) http.Handler {
	mux := http.NewServeMux()
	NewAgentHandler(ctl, "test", zerolog.Nop()).Routes(mux)
	return Chain(mux, Recover(zerolog.Nop()), CORS, Logger(zerolog.Nop()))
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDetect(t *testing.T) {
	ctl := &fakeController{discover: agent.DiscoverResult{
		Success:     true,
		Instruments: []domain.DeviceEntry{{DisplayName: "HEWLETT-PACKARD 34970A", Address: "GPIB0::9::INSTR", Bus: domain.BusGPIB}},
		Count:       1,
		ScanTime:    0.42,
	}}

	rec := do(t, serve(ctl), http.MethodPost, "/detect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"success": true,
		"instruments": [{"name":"HEWLETT-PACKARD 34970A","address":"GPIB0::9::INSTR","bus":"gpib","identified":false}],
		"count": 1,
		"scan_time": 0.42
	}`, rec.Body.String())
}

func TestDetectTransportUnavailable(t *testing.T) {
	ctl := &fakeController{
		discover:    agent.DiscoverResult{Instruments: []domain.DeviceEntry{}},
		discoverErr: transport.ErrUnavailable,
	}

	rec := do(t, serve(ctl), http.MethodPost, "/detect", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["message"], "transport unavailable")
}

func TestControl(t *testing.T) {
	ctl := &fakeController{result: domain.Succeeded("Output ON", nil)}

	rec := do(t, serve(ctl), http.MethodPost, "/control",
		`{"address":"ASRL3::INSTR","instrument_type":"dc_source","action":"on","value":1.5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"Output ON"}`, rec.Body.String())

	require.Len(t, ctl.executed, 1)
	assert.Equal(t, "ASRL3::INSTR", ctl.executed[0].Address)
	assert.Equal(t, 1.5, *ctl.executed[0].Value)
}

func TestControlFailureIsStill200(t *testing.T) {
	ctl := &fakeController{result: domain.CommandResult{Success: false, Message: "unsupported model"}}

	rec := do(t, serve(ctl), http.MethodPost, "/control",
		`{"address":"ASRL3::INSTR","instrument_type":"dc_source","action":"on"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported model")
}

func TestControlBadRequests(t *testing.T) {
	ctl := &fakeController{}
	h := serve(ctl)

	rec := do(t, h, http.MethodPost, "/control", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/control", `{"address":"ASRL3::INSTR"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "instrument_type")

	assert.Empty(t, ctl.executed)
}

func TestStatusAndResources(t *testing.T) {
	ctl := &fakeController{resources: []string{"GPIB0::9::INSTR", "ASRL3::INSTR"}}
	h := serve(ctl)

	rec := do(t, h, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available_resources":2`)

	rec = do(t, h, http.MethodGet, "/debug/resources", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"resources":["GPIB0::9::INSTR","ASRL3::INSTR"],"resource_count":2}`, rec.Body.String())

	ctl.listErr = transport.ErrUnavailable
	rec = do(t, h, http.MethodGet, "/debug/resources", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMethodRouting(t *testing.T) {
	rec := do(t, serve(&fakeController{}), http.MethodGet, "/detect", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	rec := do(t, serve(&fakeController{}), http.MethodOptions, "/control", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecover(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }), Recover(zerolog.Nop()))
	rec := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}), mw("a"), mw("b"))
	do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, []string{"a", "b"}, order)
}
