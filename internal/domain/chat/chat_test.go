package chat

import (
	"testing"

	"github.com/Strob0t/CrewForge/internal/domain/agent"
)

func roster() []agent.Agent {
	return []agent.Agent{
		{ID: "a1", Role: "Product Owner", DisplayName: "Priya"},
		{ID: "a2", Role: "Developer", DisplayName: "Dana"},
		{ID: "a3", Role: "QA Engineer"},
	}
}

func ids(agents []agent.Agent) []string {
	out := make([]string, len(agents))
	for i := range agents {
		out[i] = agents[i].ID
	}
	return out
}

func TestMentions(t *testing.T) {
	got := Mentions("hey @QA and @dana, please sync with @team")
	want := []string{"qa", "dana", "team"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestResolveTargetsRoleAlias(t *testing.T) {
	targets := ResolveTargets(roster(), "@qa please check the login flow", PolicyManagers)
	if len(targets) != 1 || targets[0].Role != "QA Engineer" {
		t.Fatalf("expected QA Engineer, got %v", ids(targets))
	}
}

func TestResolveTargetsDisplayName(t *testing.T) {
	targets := ResolveTargets(roster(), "@dana can you take this?", PolicyManagers)
	if len(targets) != 1 || targets[0].ID != "a2" {
		t.Fatalf("expected Dana, got %v", ids(targets))
	}
}

func TestResolveTargetsSpaceStrippedRole(t *testing.T) {
	targets := ResolveTargets(roster(), "@productowner what's the priority?", PolicyTeam)
	if len(targets) != 1 || targets[0].ID != "a1" {
		t.Fatalf("expected Product Owner, got %v", ids(targets))
	}
}

func TestResolveTargetsUnionOfMentions(t *testing.T) {
	targets := ResolveTargets(roster(), "@dana @qa please pair on this", PolicyManagers)
	if len(targets) != 2 {
		t.Fatalf("expected union of two targets, got %v", ids(targets))
	}
}

func TestResolveTargetsBroadcast(t *testing.T) {
	for _, msg := range []string{"@team status?", "@all standup", "@everyone read this"} {
		targets := ResolveTargets(roster(), msg, PolicyManagers)
		if len(targets) != 3 {
			t.Fatalf("expected whole team for %q, got %v", msg, ids(targets))
		}
	}
}

func TestResolveTargetsFallbackPolicies(t *testing.T) {
	targets := ResolveTargets(roster(), "no mentions here", PolicyManagers)
	if len(targets) != 1 || targets[0].Role != "Product Owner" {
		t.Fatalf("expected managers fallback, got %v", ids(targets))
	}

	targets = ResolveTargets(roster(), "no mentions here", PolicyTeam)
	if len(targets) != 3 {
		t.Fatalf("expected team fallback, got %v", ids(targets))
	}
}

func TestResolveTargetsUnresolvableMentionFallsBack(t *testing.T) {
	targets := ResolveTargets(roster(), "@nobody can you look?", PolicyManagers)
	if len(targets) != 1 || targets[0].Role != "Product Owner" {
		t.Fatalf("expected managers fallback for unresolvable mention, got %v", ids(targets))
	}
}

func TestResolveTargetsDeduplicates(t *testing.T) {
	targets := ResolveTargets(roster(), "@dana @dana ping", PolicyManagers)
	if len(targets) != 1 {
		t.Fatalf("expected deduplicated target, got %v", ids(targets))
	}
}
