package app

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kestrelworks/aviary/internal/core/domain"
)

func TestClampCount(t *testing.T) {
	cases := []struct {
		query string
		def   int
		max   int
		want  int
	}{
		{"", 5, 100, 5},
		{"count=10", 5, 100, 10},
		{"count=0", 5, 100, 1},
		{"count=-3", 5, 100, 1},
		{"count=500", 5, 100, 100},
		{"count=banana", 5, 100, 5},
		{"count=200", 50, 200, 200},
		{"count=201", 50, 200, 200},
	}
	for _, tc := range cases {
		r := httptest.NewRequest("GET", "/api/v3/tweets/alice?"+tc.query, nil)
		if got := clampCount(r, tc.def, tc.max); got != tc.want {
			t.Errorf("clampCount(%q, %d, %d) = %d, want %d", tc.query, tc.def, tc.max, got, tc.want)
		}
	}
}

func TestWriteSuccessEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	writeSuccess(w, "ok", []string{"payload"})

	if w.Code != 200 {
		t.Errorf("status = %d", w.Code)
	}

	var resp apiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid envelope: %v", err)
	}
	if !resp.Success || resp.Message != "ok" {
		t.Errorf("envelope = %+v", resp)
	}
	if len(resp.Errors) != 0 {
		t.Errorf("errors should be empty, got %v", resp.Errors)
	}
}

func TestWriteDispatchErrorStatuses(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
	}{
		{domain.ErrQueueFull, 503},
		{domain.ErrNoUsableAccounts, 503},
		{errors.New("429 Too Many Requests"), 429},
		{errors.New("401 Unauthorized"), 401},
		{errors.New("User not found"), 404},
		{errors.New("getTweets(u) timed out after 35000ms"), 502},
		{errors.New("something weird"), 500},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		writeDispatchError(w, tc.err)
		if w.Code != tc.wantStatus {
			t.Errorf("status for %q = %d, want %d", tc.err, w.Code, tc.wantStatus)
		}

		var resp apiResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid envelope: %v", err)
		}
		if resp.Success {
			t.Errorf("success = true for error %q", tc.err)
		}
		if len(resp.Errors) != 1 {
			t.Errorf("errors = %v", resp.Errors)
		}
	}
}

func TestWriteErrorTruncatesMessage(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, 500, strings.Repeat("x", 1000))

	var resp apiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid envelope: %v", err)
	}
	if len(resp.Message) != domain.MaxUserVisibleErrorLen {
		t.Errorf("message length = %d, want %d", len(resp.Message), domain.MaxUserVisibleErrorLen)
	}
}
