package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kestrelworks/aviary/internal/logger"
)

func testLogger(t *testing.T) *logger.StyledLogger {
	t.Helper()
	_, styled, cleanup, err := logger.NewWithTheme(&logger.Config{Level: "error", FileOutput: false})
	if err != nil {
		t.Fatalf("failed to initialise test logger: %v", err)
	}
	t.Cleanup(cleanup)
	return styled
}

func TestRegisterAndWireUp(t *testing.T) {
	registry := NewRouteRegistry(testLogger(t))

	called := false
	registry.Register("/api/v3/health", func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}, "Service liveness")

	mux := http.NewServeMux()
	registry.WireUp(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/v3/health", nil))

	if !called {
		t.Error("handler was not invoked")
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestMethodConstraint(t *testing.T) {
	registry := NewRouteRegistry(testLogger(t))
	registry.RegisterWithMethod("/api/v3/stats", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, "stats", http.MethodGet)

	mux := http.NewServeMux()
	registry.WireUp(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("POST", "/api/v3/stats", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status for POST = %d, want 405", w.Code)
	}
}

func TestPathWildcards(t *testing.T) {
	registry := NewRouteRegistry(testLogger(t))

	var gotUsername string
	registry.Register("/api/v3/profile/{username}", func(w http.ResponseWriter, r *http.Request) {
		gotUsername = r.PathValue("username")
	}, "profile")

	mux := http.NewServeMux()
	registry.WireUp(mux)

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v3/profile/alice", nil))
	if gotUsername != "alice" {
		t.Errorf("username = %q, want alice", gotUsername)
	}
}

func TestRoutesAreRecorded(t *testing.T) {
	registry := NewRouteRegistry(testLogger(t))
	registry.Register("/a", func(http.ResponseWriter, *http.Request) {}, "first")
	registry.Register("/b", func(http.ResponseWriter, *http.Request) {}, "second")

	routes := registry.GetRoutes()
	if len(routes) != 2 {
		t.Fatalf("got %d routes", len(routes))
	}
	if routes["/a"].Order >= routes["/b"].Order {
		t.Error("registration order not preserved")
	}
}
