package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/ossforge/forgesync/internal/overlay"
	"github.com/ossforge/forgesync/internal/registry"
)

func TestStaleMemberRemoved(t *testing.T) {
	f := newFakeForge()
	f.teams["acme/tools-widget-committers"] = true
	f.members["acme/tools-widget-committers"] = []string{"alice-gh", "old-gh"}

	dir := testDirectory()
	dir.profiles["old-gh"] = &registry.Profile{Name: "old", GitHubHandle: "old-gh"}

	r := New(f, dir, nil, nil, Options{})
	if err := r.Run(context.Background(), []registry.Project{testProject()}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	members := f.members["acme/tools-widget-committers"]
	if containsFold(members, "old-gh") {
		t.Errorf("expected old-gh to be removed, got %v", members)
	}
	if !containsFold(members, "alice-gh") {
		t.Errorf("expected alice-gh to be kept, got %v", members)
	}
}

func TestUnidentifiableMemberKept(t *testing.T) {
	f := newFakeForge()
	f.teams["acme/tools-widget-committers"] = true
	// mystery-gh has no registry profile; shadow-gh has a profile whose
	// platform handle points at a different login.
	f.members["acme/tools-widget-committers"] = []string{"alice-gh", "mystery-gh", "shadow-gh"}

	dir := testDirectory()
	dir.profiles["shadow-gh"] = &registry.Profile{Name: "shadow", GitHubHandle: "someone-else"}

	r := New(f, dir, nil, nil, Options{})
	if err := r.Run(context.Background(), []registry.Project{testProject()}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	members := f.members["acme/tools-widget-committers"]
	if !containsFold(members, "mystery-gh") {
		t.Errorf("expected unidentifiable mystery-gh to be kept, got %v", members)
	}
	if !containsFold(members, "shadow-gh") {
		t.Errorf("expected mismatched shadow-gh to be kept, got %v", members)
	}
	if len(f.removed) != 0 {
		t.Errorf("expected no removals, got %v", f.removed)
	}
}

func TestProjectBotKept(t *testing.T) {
	f := newFakeForge()
	f.teams["acme/tools-widget-committers"] = true
	f.members["acme/tools-widget-committers"] = []string{"alice-gh", "widget-bot"}

	bots := registry.BotMap{"tools.widget": {"widget-bot"}}
	r := New(f, testDirectory(), bots, nil, Options{})
	if err := r.Run(context.Background(), []registry.Project{testProject()}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !containsFold(f.members["acme/tools-widget-committers"], "widget-bot") {
		t.Errorf("expected bot to be kept, got %v", f.members["acme/tools-widget-committers"])
	}
}

func TestDeletionDryRunSuppressesRemovalsOnly(t *testing.T) {
	f := newFakeForge()
	f.teams["acme/tools-widget-committers"] = true
	f.members["acme/tools-widget-committers"] = []string{"old-gh"}

	dir := testDirectory()
	dir.profiles["old-gh"] = &registry.Profile{Name: "old", GitHubHandle: "old-gh"}

	r := New(f, dir, nil, nil, Options{DeletionDryRun: true})
	if err := r.Run(context.Background(), []registry.Project{testProject()}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	members := f.members["acme/tools-widget-committers"]
	if !containsFold(members, "old-gh") {
		t.Errorf("expected old-gh kept under deletion dry-run, got %v", members)
	}
	// Additions are not suppressed.
	if !containsFold(members, "alice-gh") {
		t.Errorf("expected alice-gh invited under deletion dry-run, got %v", members)
	}
	if len(f.removed) != 0 {
		t.Errorf("expected no removals, got %v", f.removed)
	}
}

func TestExpiredMemberTreatedAsAbsent(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	project := testProject()
	project.Committers = []registry.Member{
		{Username: "alice", URL: "https://reg/alice", Expiration: "2025-01-01"},
		{Username: "bob", URL: "https://reg/bob", Expiration: "2030-01-01"},
	}

	f := newFakeForge()
	f.teams["acme/tools-widget-committers"] = true
	// alice-gh is still a member from before her expiration.
	f.members["acme/tools-widget-committers"] = []string{"alice-gh"}

	r := New(f, testDirectory(), nil, nil, Options{Now: func() time.Time { return now }})
	if err := r.Run(context.Background(), []registry.Project{project}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	members := f.members["acme/tools-widget-committers"]
	if containsFold(members, "alice-gh") {
		t.Errorf("expected expired alice-gh to be removed, got %v", members)
	}
	if !containsFold(members, "bob-gh") {
		t.Errorf("expected unexpired bob-gh to be invited, got %v", members)
	}
}

func TestUnresolvableMemberSkipped(t *testing.T) {
	project := testProject()
	project.Committers = []registry.Member{
		{Username: "ghost", URL: "https://reg/ghost"},
		{Username: "nohandle", URL: "https://reg/nohandle"},
	}

	dir := testDirectory()
	// nohandle exists in the registry but has no linked platform login.
	dir.logins["nohandle"] = ""

	f := newFakeForge()
	r := New(f, dir, nil, nil, Options{})
	if err := r.Run(context.Background(), []registry.Project{project}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := f.members["acme/tools-widget-committers"]; len(got) != 0 {
		t.Errorf("expected no members invited, got %v", got)
	}
}

func TestFailedInviteNeverEscalatesToRemoval(t *testing.T) {
	f := newFakeForge()
	f.teams["acme/tools-widget-committers"] = true
	// alice is desired, already a member, and her invite errors.
	f.members["acme/tools-widget-committers"] = []string{"alice-gh"}
	f.failInvites["alice-gh"] = true

	r := New(f, testDirectory(), nil, nil, Options{})
	if err := r.Run(context.Background(), []registry.Project{testProject()}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !containsFold(f.members["acme/tools-widget-committers"], "alice-gh") {
		t.Errorf("expected alice-gh to remain a member, got %v", f.members["acme/tools-widget-committers"])
	}
	if len(f.removed) != 0 {
		t.Errorf("expected no removals after failed invite, got %v", f.removed)
	}
}

func TestStaticTeamSynced(t *testing.T) {
	static := []overlay.Team{
		{
			Name:       "Security Team",
			Repos:      []string{"https://github.com/acme/widget", "https://github.com/acme/gadget"},
			Members:    []registry.Member{{Username: "alice", URL: "https://reg/alice"}},
			Permission: "maintain",
		},
	}

	f := newFakeForge()
	r := New(f, testDirectory(), nil, static, Options{})
	if err := r.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !f.teams["acme/security-team"] {
		t.Error("expected static team to be created")
	}
	if !containsFold(f.members["acme/security-team"], "alice-gh") {
		t.Errorf("expected alice-gh in static team, got %v", f.members["acme/security-team"])
	}
	for _, repo := range []string{"widget", "gadget"} {
		b, ok := f.bindings["acme/"+repo+"->security-team"]
		if !ok {
			t.Errorf("expected binding for %s", repo)
			continue
		}
		if string(b.perm) != "maintain" {
			t.Errorf("binding for %s: got %q, want maintain", repo, b.perm)
		}
	}
}

func TestExpiredStaticTeamDeleted(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	static := []overlay.Team{
		{
			Name:       "Old Working Group",
			Repos:      []string{"https://github.com/acme/widget"},
			Members:    []registry.Member{{Username: "alice", URL: "https://reg/alice"}},
			Permission: "push",
			Expiration: "2025-01-01",
		},
	}

	f := newFakeForge()
	f.teams["acme/old-working-group"] = true
	f.members["acme/old-working-group"] = []string{"alice-gh"}

	r := New(f, testDirectory(), nil, static, Options{Now: func() time.Time { return now }})
	if err := r.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if f.teams["acme/old-working-group"] {
		t.Error("expected expired static team to be deleted")
	}
	if len(f.invited) != 0 {
		t.Errorf("expected no invitations for expired team, got %v", f.invited)
	}
	if _, ok := f.bindings["acme/widget->old-working-group"]; ok {
		t.Error("expected no binding for expired team")
	}
}
