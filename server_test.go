package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/oszuidwest/zwfm-vumeter/internal/capture"
	"github.com/oszuidwest/zwfm-vumeter/internal/config"
	"github.com/oszuidwest/zwfm-vumeter/internal/engine"
	"github.com/oszuidwest/zwfm-vumeter/internal/meter"
	"github.com/oszuidwest/zwfm-vumeter/internal/types"
)

var csrfPattern = regexp.MustCompile(`name="csrf_token" value="([0-9a-f]+)"`)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	eng := engine.New(engine.Options{
		Start: func(context.Context, string) (capture.Session, error) {
			return nil, capture.ErrNoAudioDevice
		},
		List: func() ([]types.Source, error) {
			return []types.Source{{ID: "hw:0", Name: "Line in"}}, nil
		},
	})

	srv := httptest.NewServer(NewServer(cfg, eng, NewVersionChecker()).SetupRoutes())
	t.Cleanup(srv.Close)
	return srv
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// login signs in with the default credentials and returns the session cookie.
func login(t *testing.T, srv *httptest.Server, password string) (*http.Response, *http.Cookie) {
	t.Helper()
	client := &http.Client{CheckRedirect: noRedirect}

	resp, err := client.Get(srv.URL + "/login")
	if err != nil {
		t.Fatal(err)
	}
	page, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}

	m := csrfPattern.FindSubmatch(page)
	if m == nil {
		t.Fatal("login page has no CSRF token")
	}

	resp, err = client.PostForm(srv.URL+"/login", url.Values{
		"csrf_token": {string(m[1])},
		"username":   {config.DefaultWebUsername},
		"password":   {password},
	})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	for _, c := range resp.Cookies() {
		if c.Value != "" {
			return resp, c
		}
	}
	return resp, nil
}

func TestLoginFlow(t *testing.T) {
	srv := newTestServer(t)

	resp, cookie := login(t, srv, config.DefaultWebPassword)
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if cookie == nil {
		t.Fatal("no session cookie")
	}

	resp, cookie = login(t, srv, "wrong")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if cookie != nil {
		t.Error("bad password should not set a session cookie")
	}
}

func TestLoginRejectsMissingCSRF(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.PostForm(srv.URL+"/login", url.Values{
		"username": {config.DefaultWebUsername},
		"password": {config.DefaultWebPassword},
	})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

func TestProtectedRoutes(t *testing.T) {
	srv := newTestServer(t)
	_, cookie := login(t, srv, config.DefaultWebPassword)

	tests := []struct {
		path     string
		auth     bool
		wantCode int
	}{
		{"/", false, http.StatusFound},
		{"/", true, http.StatusOK},
		{"/api/levels", false, http.StatusUnauthorized},
		{"/api/levels", true, http.StatusOK},
		{"/api/status", true, http.StatusOK},
		{"/api/sources", true, http.StatusOK},
		{"/app.js", false, http.StatusUnauthorized},
		{"/style.css", false, http.StatusOK},
		{"/missing", true, http.StatusNotFound},
	}

	client := &http.Client{CheckRedirect: noRedirect}
	for _, tt := range tests {
		req, err := http.NewRequest(http.MethodGet, srv.URL+tt.path, nil)
		if err != nil {
			t.Fatal(err)
		}
		if tt.auth {
			req.AddCookie(cookie)
		}
		resp, err := client.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.wantCode {
			t.Errorf("GET %s (auth=%v) = %d, want %d", tt.path, tt.auth, resp.StatusCode, tt.wantCode)
		}
	}
}

func TestLevelsAtRest(t *testing.T) {
	srv := newTestServer(t)
	_, cookie := login(t, srv, config.DefaultWebPassword)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/levels", nil)
	req.AddCookie(cookie)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var snap meter.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Value != meter.MinDB || snap.Normalized != 0 || snap.PeakActive {
		t.Errorf("snapshot = %+v, want needle at rest", snap)
	}
}

func TestSources(t *testing.T) {
	srv := newTestServer(t)
	_, cookie := login(t, srv, config.DefaultWebPassword)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/sources?refresh", nil)
	req.AddCookie(cookie)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var sources []types.Source
	if err := json.NewDecoder(resp.Body).Decode(&sources); err != nil {
		t.Fatal(err)
	}
	if len(sources) != 1 || sources[0].ID != "hw:0" {
		t.Errorf("sources = %+v", sources)
	}
}
