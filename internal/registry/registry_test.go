package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ossforge/forgesync/internal/cache"
)

func TestMemberExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		expiration string
		want       bool
	}{
		{"", false},
		{"2025-05-31", true},
		{"2025-06-02", false},
		{"2024-01-01T00:00:00Z", true},
		{"2030-01-01T00:00:00Z", false},
		{"not-a-date", false},
	}
	for _, c := range cases {
		m := Member{Username: "u", Expiration: c.expiration}
		if got := m.Expired(now); got != c.want {
			t.Errorf("Expired(%q) = %v, want %v", c.expiration, got, c.want)
		}
	}
}

func TestParseRepoURL(t *testing.T) {
	cases := []struct {
		url  string
		org  string
		repo string
		ok   bool
	}{
		{"https://github.com/acme/widget", "acme", "widget", true},
		{"https://github.com/acme/widget/", "acme", "widget", true},
		{"http://www.github.com/acme/widget", "acme", "widget", true},
		{"https://github.com/acme", "", "", false},
		{"", "", "", false},
	}
	for _, c := range cases {
		org, repo, ok := ParseRepoURL(c.url)
		if ok != c.ok || org != c.org || repo != c.repo {
			t.Errorf("ParseRepoURL(%q) = (%q, %q, %v), want (%q, %q, %v)",
				c.url, org, repo, ok, c.org, c.repo, c.ok)
		}
	}
}

func TestFetchProjectsPagination(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/api/projects", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if r.URL.Query().Get("github_only") != "1" {
			t.Errorf("expected github_only=1, got query %q", r.URL.RawQuery)
		}
		switch page {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(
				`<%s/api/projects?github_only=1&page=1>; rel="self", <%s/api/projects?github_only=1&page=2>; rel="next", <%s/api/projects?github_only=1&page=2>; rel="last"`,
				srv.URL, srv.URL, srv.URL))
			fmt.Fprint(w, `[{"project_id":"tools.widget","name":"Widget","github_repos":[{"url":"https://github.com/acme/widget"}]}]`)
		case "2":
			w.Header().Set("Link", fmt.Sprintf(
				`<%s/api/projects?github_only=1&page=2>; rel="self", <%s/api/projects?github_only=1&page=2>; rel="next", <%s/api/projects?github_only=1&page=2>; rel="last"`,
				srv.URL, srv.URL, srv.URL))
			fmt.Fprint(w, `[{"project_id":"tools.gadget","name":"Gadget","github_repos":[{"url":"https://github.com/acme/gadget"},{"url":"git@bad"}]},{"project_id":"tools.empty","name":"Empty","github_repos":[]}]`)
		default:
			t.Errorf("unexpected page %q", page)
		}
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(Options{
		ProjectsURL: srv.URL + "/api/projects",
		AccountsURL: srv.URL + "/api",
	})
	projects, err := c.FetchProjects(context.Background())
	if err != nil {
		t.Fatalf("FetchProjects failed: %v", err)
	}

	// tools.empty has no parseable repos and is dropped.
	if len(projects) != 2 {
		t.Fatalf("expected 2 projects, got %d: %+v", len(projects), projects)
	}
	if projects[0].ID != "tools.widget" || projects[1].ID != "tools.gadget" {
		t.Errorf("unexpected project order: %q, %q", projects[0].ID, projects[1].ID)
	}

	widget := projects[0]
	if len(widget.Organizations) != 1 || widget.Organizations[0] != "acme" {
		t.Errorf("unexpected organizations %v", widget.Organizations)
	}
	if widget.Repos[0].Organization != "acme" || widget.Repos[0].Name != "widget" {
		t.Errorf("unexpected repo ref %+v", widget.Repos[0])
	}

	// The unparseable repo URL on tools.gadget is skipped, not fatal.
	gadget := projects[1]
	if len(gadget.RepoNames) != 1 || gadget.RepoNames[0] != "gadget" {
		t.Errorf("unexpected repo names %v", gadget.RepoNames)
	}
}

func TestFetchProjectsPreservesExistingQuery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/projects", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("scope") != "all" {
			t.Errorf("expected configured query to survive, got %q", r.URL.RawQuery)
		}
		if r.URL.Query().Get("github_only") != "1" {
			t.Errorf("expected github_only=1 to be appended, got %q", r.URL.RawQuery)
		}
		fmt.Fprint(w, `[{"project_id":"tools.widget","name":"Widget","github_repos":[{"url":"https://github.com/acme/widget"}]}]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(Options{ProjectsURL: srv.URL + "/api/projects?scope=all"})
	projects, err := c.FetchProjects(context.Background())
	if err != nil {
		t.Fatalf("FetchProjects failed: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("expected 1 project, got %d", len(projects))
	}
}

func TestResolveMember(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/alice", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"alice","github_handle":"alice-gh"}`)
	})
	mux.HandleFunc("/accounts/bob", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"bob","github_handle":""}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(Options{AccountsURL: srv.URL + "/api"})
	ctx := context.Background()

	login, err := c.ResolveMember(ctx, Member{Username: "alice", URL: srv.URL + "/accounts/alice"})
	if err != nil {
		t.Fatalf("ResolveMember failed: %v", err)
	}
	if login != "alice-gh" {
		t.Errorf("expected login alice-gh, got %q", login)
	}

	// An account without a platform handle resolves to empty, not error.
	login, err = c.ResolveMember(ctx, Member{Username: "bob", URL: srv.URL + "/accounts/bob"})
	if err != nil {
		t.Fatalf("ResolveMember for bob failed: %v", err)
	}
	if login != "" {
		t.Errorf("expected empty login, got %q", login)
	}

	if _, err := c.ResolveMember(ctx, Member{Username: "no-url"}); err == nil {
		t.Error("expected error for member without profile URL")
	}
}

func TestProfileByUsernameUnknownUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/github/profile/ghost", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(Options{AccountsURL: srv.URL + "/api"})
	_, err := c.ProfileByUsername(context.Background(), "ghost")
	if !errors.Is(err, ErrUnknownUser) {
		t.Errorf("expected ErrUnknownUser, got %v", err)
	}
}

func TestGetCachedUsesHTTPCache(t *testing.T) {
	var hits int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/github/profile/alice", func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, `{"name":"alice","github_handle":"alice-gh"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store, err := cache.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	httpCache, err := store.Cache("http", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	c := NewClient(Options{AccountsURL: srv.URL + "/api", Cache: httpCache})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		profile, err := c.ProfileByUsername(ctx, "alice")
		if err != nil {
			t.Fatalf("ProfileByUsername failed: %v", err)
		}
		if profile.GitHubHandle != "alice-gh" {
			t.Errorf("unexpected profile %+v", profile)
		}
	}
	if hits != 1 {
		t.Errorf("expected one upstream request, got %d", hits)
	}
}

func TestFetchBotsAndBuildBotMap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/bots", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"projectId":"tools.widget","github.com":{"username":"widget-bot","email":"bot@widget"},"gitlab.com":{"username":"widget-gl-bot"}},
			{"projectId":"tools.gadget","gitlab.com":{"username":"gadget-gl-bot"}},
			{"projectId":"tools.widget","github.com":{"username":"widget-ci"}}
		]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(Options{AccountsURL: srv.URL + "/api"})
	bots, err := c.FetchBots(context.Background())
	if err != nil {
		t.Fatalf("FetchBots failed: %v", err)
	}
	if len(bots) != 3 {
		t.Fatalf("expected 3 bot entries, got %d", len(bots))
	}

	m := BuildBotMap(bots, "github.com")
	if len(m) != 1 {
		t.Fatalf("expected one project with github bots, got %v", m)
	}
	widget := m["tools.widget"]
	if len(widget) != 2 || widget[0] != "widget-bot" || widget[1] != "widget-ci" {
		t.Errorf("unexpected bot logins %v", widget)
	}
	if _, ok := m["tools.gadget"]; ok {
		t.Error("expected gadget to have no github bots")
	}
}
