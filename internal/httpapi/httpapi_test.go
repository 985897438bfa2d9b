package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/USC-NSL/DDB/internal/cmdflow"
	"github.com/USC-NSL/DDB/internal/state"
)

func newTestSurface() *Surface {
	store := state.NewStore()
	tracker := cmdflow.NewTracker(store, 2)
	router := cmdflow.NewRouter(store, tracker, nil)
	tracker.Bind(router)
	parser := cmdflow.NewInputCmdParser(store)
	hc := &cmdflow.HandlerContext{
		Store:             store,
		Router:            router,
		Tracker:           tracker,
		Framework:         cmdflow.FrameworkGrpc,
		InterruptDeadline: time.Second,
		InterruptPoll:     time.Millisecond,
	}
	return NewSurface(hc, cmdflow.NewDispatch(), parser)
}

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	s := newTestSurface()
	mux := http.NewServeMux()
	if err := s.Mount(mux); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	return mux
}

func TestHandleStatusEmpty(t *testing.T) {
	mux := newTestMux(t)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Sessions != 0 {
		t.Fatalf("Sessions = %d, want 0", got.Sessions)
	}
}

func TestHandleSessionsListsRegistered(t *testing.T) {
	s := newTestSurface()
	s.store.RegisterSession(1, "worker-1", &state.ServiceMeta{IP: "10.0.0.1", Alias: "worker"})

	mux := http.NewServeMux()
	if err := s.Mount(mux); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var got []sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].SID != 1 || got[0].Tag != "worker-1" {
		t.Fatalf("unexpected sessions response: %+v", got)
	}
}

func TestHandleSrcToGroupIDsRequiresSrc(t *testing.T) {
	mux := newTestMux(t)

	req := httptest.NewRequest(http.MethodGet, "/src_to_grp_ids", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleSendRoutesThroughDispatchAndAccepts(t *testing.T) {
	mux := newTestMux(t)

	body := strings.NewReader(`{"line":"-exec-continue"}`)
	req := httptest.NewRequest(http.MethodPost, "/send", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got sendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
}
