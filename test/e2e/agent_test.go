// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package e2e exercises the full request path: HTTP ingress through the
// worker pool and build pipeline against stubbed GitHub, LLM, and
// evaluation endpoints. Everything runs in-process with zero delays.
package e2e

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ForgelineAI/forgeline/services/agent/config"
	"github.com/ForgelineAI/forgeline/services/agent/datatypes"
	"github.com/ForgelineAI/forgeline/services/agent/engine"
	"github.com/ForgelineAI/forgeline/services/agent/generator"
	"github.com/ForgelineAI/forgeline/services/agent/notifier"
	"github.com/ForgelineAI/forgeline/services/agent/publisher"
	"github.com/ForgelineAI/forgeline/services/agent/routes"
	"github.com/ForgelineAI/forgeline/services/agent/worker"
)

const sharedSecret = "e2e-secret"

// stubLLM returns a fixed page for every prompt.
type stubLLM struct{}

func (stubLLM) Generate(context.Context, string) (string, error) {
	return "<!DOCTYPE html><html><body>generated</body></html>", nil
}

// githubStub is a minimal in-memory slice of the GitHub REST API: repo
// lookup/creation, content writes, and Pages enablement.
type githubStub struct {
	mu      sync.Mutex
	repos   map[string]bool
	files   map[string]string // repo/path -> content
	pages   int
	commits int
}

func newGithubStub() *githubStub {
	return &githubStub{repos: map[string]bool{}, files: map[string]string{}}
}

func (g *githubStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch {
		case r.Method == http.MethodGet && parts[0] == "repos" && len(parts) == 3:
			repo := parts[2]
			if !g.repos[repo] {
				http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"name": repo, "html_url": "https://github.com/acme/" + repo,
				"default_branch": "main",
			})
		case r.Method == http.MethodPost && parts[0] == "user" && parts[1] == "repos":
			var body struct {
				Name string `json:"name"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			g.repos[body.Name] = true
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{
				"name": body.Name, "html_url": "https://github.com/acme/" + body.Name,
			})
		case len(parts) >= 5 && parts[3] == "contents" && r.Method == http.MethodGet:
			key := parts[2] + "/" + strings.Join(parts[4:], "/")
			content, ok := g.files[key]
			if !ok {
				http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"content": base64.StdEncoding.EncodeToString([]byte(content)),
				"sha":     "sha-" + key,
			})
		case len(parts) >= 5 && parts[3] == "contents" && r.Method == http.MethodPut:
			var body struct {
				Content string `json:"content"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			raw, _ := base64.StdEncoding.DecodeString(body.Content)
			key := parts[2] + "/" + strings.Join(parts[4:], "/")
			g.files[key] = string(raw)
			g.commits++
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{
				"commit": map[string]any{"sha": "commit-sha"},
			})
		case len(parts) >= 5 && parts[3] == "branches" && r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"commit": map[string]any{"sha": "head-sha"},
			})
		case len(parts) == 4 && parts[3] == "pages" && r.Method == http.MethodPost:
			g.pages++
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{})
		default:
			http.Error(w, `{"message":"unhandled route"}`, http.StatusNotFound)
		}
	})
	return mux
}

func (g *githubStub) file(repo, path string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.files[repo+"/"+path]
	return c, ok
}

func buildAgent(t *testing.T, github *httptest.Server) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ghCfg := config.GitHubConfig{
		Token:   "test-token",
		Owner:   "acme",
		BaseURL: github.URL,
		Timeout: 5 * time.Second,
	}
	buildCfg := config.BuildConfig{
		NotifyMaxAttempts: 2,
		NotifyTimeout:     5 * time.Second,
	}

	gen := generator.New(stubLLM{}, 5*time.Second)
	pub := publisher.NewClient(ghCfg)
	notify := notifier.New(buildCfg)
	pipeline := engine.NewPipeline(gen, pub, notify, buildCfg)

	pool := worker.NewPool(pipeline, 1, 8)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	router := gin.New()
	routes.SetupRoutes(router, pool, sharedSecret)
	return router
}

func TestFullBuildFlow(t *testing.T) {
	stub := newGithubStub()
	github := httptest.NewServer(stub.handler())
	defer github.Close()

	var mu sync.Mutex
	var notified []datatypes.NotificationPayload
	eval := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p datatypes.NotificationPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		mu.Lock()
		notified = append(notified, p)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer eval.Close()

	router := buildAgent(t, github)

	body := `{
		"email": "student@example.com",
		"secret": "` + sharedSecret + `",
		"task": "site-e2e",
		"round": 1,
		"nonce": "n-9",
		"brief": "Build a landing page",
		"evaluation_url": "` + eval.URL + `"
	}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api-endpoint", strings.NewReader(body))
	router.ServeHTTP(w, req)

	// The request path answers immediately, before any build work.
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Request received and is being processed.")

	// Wait for the background pipeline to finish, observed via the
	// notification callback.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(notified) == 1
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	got := notified[0]
	mu.Unlock()
	assert.Equal(t, "site-e2e", got.Task)
	assert.Equal(t, "n-9", got.Nonce)
	assert.Equal(t, 1, got.Round)
	assert.NotEmpty(t, got.RepoURL)
	assert.NotEmpty(t, got.PagesURL)

	// The artifact reached the repository, primary file included.
	content, ok := stub.file("site-e2e", datatypes.PrimaryFile)
	require.True(t, ok, "primary file must be published")
	assert.Contains(t, content, "generated")
	if _, ok := stub.file("site-e2e", "README.md"); !ok {
		t.Error("README.md companion missing")
	}
}

func TestRejectsBadSecretBeforeAnyWork(t *testing.T) {
	stub := newGithubStub()
	github := httptest.NewServer(stub.handler())
	defer github.Close()

	router := buildAgent(t, github)

	body := `{"email":"a@b.com","secret":"wrong","task":"site-x","round":1,` +
		`"nonce":"n","brief":"b","evaluation_url":"http://unused"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api-endpoint", strings.NewReader(body))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, stub.files, "no repository writes for rejected requests")
}

func TestStatusProbe(t *testing.T) {
	stub := newGithubStub()
	github := httptest.NewServer(stub.handler())
	defer github.Close()

	router := buildAgent(t, github)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api-endpoint", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "live and ready")
}
