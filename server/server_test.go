package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/chat-tap/stream"
)

func TestHealthz(t *testing.T) {
	mux := NewMux(func() stream.Status { return stream.Status{} })
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rr.Code)
	}
}

func TestStatus(t *testing.T) {
	mux := NewMux(func() stream.Status {
		return stream.Status{State: "streaming", ChatID: "chat-1", PageToken: "7", Pages: 12}
	})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rr.Code)
	}
	var st stream.Status
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.State != "streaming" || st.PageToken != "7" || st.Pages != 12 {
		t.Errorf("status = %+v", st)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mux := NewMux(func() stream.Status { return stream.Status{} })
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", rr.Code)
	}
}
