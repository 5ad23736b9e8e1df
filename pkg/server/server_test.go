package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/clippypour/pkg/browser/static"
	"github.com/entrhq/clippypour/pkg/config"
	"github.com/entrhq/clippypour/pkg/pour"
)

const contactPage = `<html><head><title>Contact</title></head><body>
<form id="contact">
  <label for="name">Name</label><input id="name" type="text">
  <label for="email">Email</label><input id="email" type="email">
</form>
</body></html>`

func newTestServer(t *testing.T, mutate func(*config.Config)) (*httptest.Server, *pour.Service, string) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Browser.Driver = config.DriverStatic
	cfg.LLM.Enabled = false
	cfg.Fill.Pacing = 0
	cfg.Fill.RetryDelay = 0
	cfg.Storage.Dir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	svc, err := pour.New(cfg, static.NewDriver(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	ts := httptest.NewServer(New(svc, nil).Handler())
	t.Cleanup(ts.Close)

	path := filepath.Join(t.TempDir(), "contact.html")
	require.NoError(t, os.WriteFile(path, []byte(contactPage), 0o600))
	return ts, svc, "file://" + path
}

func do(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)

	resp := do(t, http.MethodGet, ts.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestAnalyze(t *testing.T) {
	ts, _, url := newTestServer(t, nil)

	resp := do(t, http.MethodPost, ts.URL+"/api/analyze", map[string]string{"form_url": url})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Forms []struct {
			Selector string `json:"selector"`
		} `json:"forms"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Forms, 1)
	assert.Equal(t, "#contact", body.Forms[0].Selector)
}

func TestAnalyze_BadRequests(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)

	resp := do(t, http.MethodPost, ts.URL+"/api/analyze", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/api/analyze", map[string]string{"url": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "unknown fields are rejected")

	resp = do(t, http.MethodPost, ts.URL+"/api/analyze", map[string]string{"form_url": "/does/not/exist.html"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.NotEmpty(t, body["error"])
}

func TestFill_Sync(t *testing.T) {
	ts, _, url := newTestServer(t, nil)

	resp := do(t, http.MethodPost, ts.URL+"/api/fill", map[string]interface{}{
		"form_url": url,
		"data":     "Jane || jane@example.com",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		SavedTemplate string `json:"saved_template"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "Done", body.Status)
	assert.Equal(t, "contact", body.SavedTemplate)

	resp = do(t, http.MethodGet, ts.URL+"/api/sessions/"+body.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/api/sessions", nil)
	var list struct {
		Sessions []struct {
			ID string `json:"id"`
		} `json:"sessions"`
	}
	decodeBody(t, resp, &list)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, body.ID, list.Sessions[0].ID)

	resp = do(t, http.MethodDelete, ts.URL+"/api/sessions/"+body.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cancel struct {
		Canceled bool `json:"canceled"`
	}
	decodeBody(t, resp, &cancel)
	assert.False(t, cancel.Canceled)
}

func TestFill_Async(t *testing.T) {
	ts, svc, url := newTestServer(t, nil)

	resp := do(t, http.MethodPost, ts.URL+"/api/fill", map[string]interface{}{
		"form_url": url,
		"data":     "Jane || jane@example.com",
		"async":    true,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &body)
	require.NotEmpty(t, body.ID)

	svc.Wait()

	res, err := svc.Session(body.ID)
	require.NoError(t, err)
	assert.Equal(t, "Done", string(res.Status))
}

func TestFill_BadRequests(t *testing.T) {
	ts, _, url := newTestServer(t, nil)

	resp := do(t, http.MethodPost, ts.URL+"/api/fill", map[string]interface{}{"data": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/api/fill", map[string]interface{}{"form_url": url, "data": "x", "mode": "yolo"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessions_Unknown(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)

	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, ts.URL+"/api/sessions/nope", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodDelete, ts.URL+"/api/sessions/nope", nil).StatusCode)
}

func TestTemplates(t *testing.T) {
	ts, _, url := newTestServer(t, nil)

	resp := do(t, http.MethodPost, ts.URL+"/api/fill", map[string]interface{}{
		"form_url": url,
		"data":     "Jane || jane@example.com",
		"template": "contact-form",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/api/templates", nil)
	var list struct {
		Templates []struct {
			Name string `json:"name"`
		} `json:"templates"`
	}
	decodeBody(t, resp, &list)
	require.Len(t, list.Templates, 1)
	assert.Equal(t, "contact-form", list.Templates[0].Name)

	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/api/templates/contact-form", nil).StatusCode)
	assert.Equal(t, http.StatusNoContent, do(t, http.MethodDelete, ts.URL+"/api/templates/contact-form", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodDelete, ts.URL+"/api/templates/contact-form", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, ts.URL+"/api/templates/contact-form", nil).StatusCode)
}

func TestHistory(t *testing.T) {
	ts, _, url := newTestServer(t, nil)

	for i := 0; i < 2; i++ {
		resp := do(t, http.MethodPost, ts.URL+"/api/fill", map[string]interface{}{
			"form_url": url,
			"data":     "Jane || jane@example.com",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := do(t, http.MethodGet, ts.URL+"/api/history?limit=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Sessions []struct {
			ID string `json:"id"`
		} `json:"sessions"`
	}
	decodeBody(t, resp, &list)
	require.Len(t, list.Sessions, 1)

	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/api/history/"+list.Sessions[0].ID, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, ts.URL+"/api/history/nope", nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, ts.URL+"/api/history?limit=x", nil).StatusCode)
}

func TestStorageDisabled(t *testing.T) {
	ts, _, _ := newTestServer(t, func(c *config.Config) {
		c.Storage = config.StorageConfig{Dir: c.Storage.Dir}
	})

	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, ts.URL+"/api/templates", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, ts.URL+"/api/history", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, ts.URL+"/api/profiles", nil).StatusCode)
}

func TestProfiles(t *testing.T) {
	ts, _, url := newTestServer(t, nil)

	resp := do(t, http.MethodPost, ts.URL+"/api/profiles", map[string]string{"name": "Work", "data": "Jane || jane@corp.example"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var saved struct {
		Name string `json:"name"`
		Data string `json:"data"`
	}
	decodeBody(t, resp, &saved)
	assert.Equal(t, "work", saved.Name)

	resp = do(t, http.MethodGet, ts.URL+"/api/profiles", nil)
	var list struct {
		Profiles []struct {
			Name string `json:"name"`
		} `json:"profiles"`
	}
	decodeBody(t, resp, &list)
	require.Len(t, list.Profiles, 1)
	assert.Equal(t, "work", list.Profiles[0].Name)

	resp = do(t, http.MethodPost, ts.URL+"/api/fill", map[string]interface{}{"form_url": url, "profile": "work"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var filled struct {
		Status  string `json:"status"`
		Profile string `json:"profile"`
	}
	decodeBody(t, resp, &filled)
	assert.Equal(t, "Done", filled.Status)
	assert.Equal(t, "work", filled.Profile)

	assert.Equal(t, http.StatusNotFound,
		do(t, http.MethodPost, ts.URL+"/api/fill", map[string]interface{}{"form_url": url, "profile": "home"}).StatusCode)
	assert.Equal(t, http.StatusBadRequest,
		do(t, http.MethodPost, ts.URL+"/api/profiles", map[string]string{"name": "empty", "data": " "}).StatusCode)

	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/api/profiles/work", nil).StatusCode)
	assert.Equal(t, http.StatusNoContent, do(t, http.MethodDelete, ts.URL+"/api/profiles/work", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodDelete, ts.URL+"/api/profiles/work", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, ts.URL+"/api/profiles/work", nil).StatusCode)
}

func TestFill_SubmitField(t *testing.T) {
	ts, _, url := newTestServer(t, nil)

	resp := do(t, http.MethodPost, ts.URL+"/api/fill", map[string]interface{}{
		"form_url": url,
		"data":     "Jane || jane@example.com",
		"submit":   true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status    string `json:"status"`
		Submitted bool   `json:"submitted"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "Done", body.Status)
	assert.True(t, body.Submitted)
}
