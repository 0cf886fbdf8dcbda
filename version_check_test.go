package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsNewerVersion(t *testing.T) {
	tests := []struct {
		latest, current string
		want            bool
	}{
		{"1.2.0", "1.1.9", true},
		{"v1.2.0", "1.2.0", false},
		{"1.2.0", "1.10.0", false},
		{"2.0.0-rc.1", "1.9.0", true},
		{"garbage", "1.0.0", false},
	}
	for _, tt := range tests {
		if got := isNewerVersion(tt.latest, tt.current); got != tt.want {
			t.Errorf("isNewerVersion(%q, %q) = %v, want %v", tt.latest, tt.current, got, tt.want)
		}
	}
}

func TestVersionCheck(t *testing.T) {
	var gotETag string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotETag = r.Header.Get("If-None-Match")
		if gotETag == `"abc"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"abc"`)
		_, _ = w.Write([]byte(`{"tag_name":"v9.9.9"}`))
	}))
	defer srv.Close()

	vc := NewVersionChecker()
	vc.apiURL = srv.URL
	vc.client = srv.Client()

	if !vc.check() {
		t.Fatal("first check failed")
	}
	if got := vc.Info().Latest; got != "9.9.9" {
		t.Errorf("Latest = %q, want 9.9.9", got)
	}

	if !vc.check() {
		t.Fatal("conditional check failed")
	}
	if gotETag != `"abc"` {
		t.Errorf("If-None-Match = %q", gotETag)
	}
	if got := vc.Info().Latest; got != "9.9.9" {
		t.Errorf("Latest after 304 = %q", got)
	}

	vc.Stop()
	vc.Stop()
}

func TestVersionCheckSkipsPrerelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tag_name":"v10.0.0-beta","prerelease":true}`))
	}))
	defer srv.Close()

	vc := NewVersionChecker()
	vc.apiURL = srv.URL
	vc.client = srv.Client()

	if !vc.check() {
		t.Fatal("check failed")
	}
	if info := vc.Info(); info.Latest != "" || info.UpdateAvail {
		t.Errorf("Info = %+v, want no release", info)
	}
}

func TestClassifyStatus(t *testing.T) {
	for code, retry := range map[int]bool{
		http.StatusOK:              false,
		http.StatusNotModified:     false,
		http.StatusNotFound:        false,
		http.StatusForbidden:       true,
		http.StatusTooManyRequests: true,
		http.StatusBadGateway:      true,
	} {
		if got := errors.Is(classifyStatus(code), errRetryLater); got != retry {
			t.Errorf("classifyStatus(%d) retry = %v, want %v", code, got, retry)
		}
	}
}
