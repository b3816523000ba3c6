package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/frostline/repofreeze/internal/model"
)

func TestClient_ListOpenPullRequests(t *testing.T) {
	repo := model.Repo{Owner: "octo", Name: "widgets"}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/octo/widgets/pulls" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("state"); got != "open" {
			t.Errorf("state = %s, want open", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %s, want Bearer test-token", got)
		}

		fmt.Fprint(w, `[
			{"number": 7, "head": {"sha": "abc123"}, "base": {"ref": "main"}},
			{"number": 9, "head": {"sha": "def456"}, "base": {"ref": "develop"}}
		]`)
	}))
	defer server.Close()

	client := NewClient(server.URL, StaticTokenSource("test-token"), nil, zap.NewNop())

	prs, err := client.ListOpenPullRequests(context.Background(), 42, repo)
	if err != nil {
		t.Fatalf("ListOpenPullRequests() failed: %v", err)
	}

	if len(prs) != 2 {
		t.Fatalf("got %d pull requests, want 2", len(prs))
	}
	if prs[0].Number != 7 || prs[0].HeadSHA != "abc123" || prs[0].BaseBranch != "main" {
		t.Errorf("first PR = %+v, want number 7, sha abc123, base main", prs[0])
	}
	if prs[1].Number != 9 || prs[1].BaseBranch != "develop" {
		t.Errorf("second PR = %+v, want number 9, base develop", prs[1])
	}
}

func TestClient_ListOpenPullRequests_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	client := NewClient(server.URL, StaticTokenSource("test-token"), nil, zap.NewNop())

	prs, err := client.ListOpenPullRequests(context.Background(), 42, model.Repo{Owner: "octo", Name: "widgets"})
	if err != nil {
		t.Fatalf("ListOpenPullRequests() failed: %v", err)
	}
	if len(prs) != 0 {
		t.Errorf("got %d pull requests, want 0", len(prs))
	}
}

func TestClient_GetPullRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/octo/widgets/pulls/7" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"number": 7, "head": {"sha": "abc123"}, "base": {"ref": "main"}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, StaticTokenSource("test-token"), nil, zap.NewNop())

	pr, err := client.GetPullRequest(context.Background(), 42, model.Repo{Owner: "octo", Name: "widgets"}, 7)
	if err != nil {
		t.Fatalf("GetPullRequest() failed: %v", err)
	}
	if pr.Number != 7 || pr.HeadSHA != "abc123" || pr.BaseBranch != "main" {
		t.Errorf("pr = %+v, want number 7, sha abc123, base main", pr)
	}
}

func TestClient_GetPullRequest_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, StaticTokenSource("test-token"), nil, zap.NewNop())

	_, err := client.GetPullRequest(context.Background(), 42, model.Repo{Owner: "octo", Name: "widgets"}, 999)
	if err == nil {
		t.Fatal("GetPullRequest() on missing PR should fail")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
}

func TestClient_CreateCheckRun(t *testing.T) {
	var received CheckRun

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/repos/octo/widgets/check-runs" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode check run body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 1}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, StaticTokenSource("test-token"), nil, zap.NewNop())

	run := CheckRun{
		Name:       CheckRunName,
		HeadSHA:    "abc123",
		Status:     StatusCompleted,
		Conclusion: ConclusionFailure,
		Output: CheckRunOutput{
			Title:   "Repository is frozen",
			Summary: "This repository is currently under a freeze restriction",
		},
	}

	if err := client.CreateCheckRun(context.Background(), 42, model.Repo{Owner: "octo", Name: "widgets"}, run); err != nil {
		t.Fatalf("CreateCheckRun() failed: %v", err)
	}

	if received.Name != "freeze-status" {
		t.Errorf("check run name = %s, want freeze-status", received.Name)
	}
	if received.HeadSHA != "abc123" {
		t.Errorf("head_sha = %s, want abc123", received.HeadSHA)
	}
	if received.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", received.Status)
	}
	if received.Conclusion != ConclusionFailure {
		t.Errorf("conclusion = %s, want failure", received.Conclusion)
	}
}
