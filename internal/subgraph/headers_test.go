package subgraph_test

import (
	"net/http"
	"testing"

	"github.com/n9te9/go-graphql-federation-gateway/internal/subgraph"
)

func TestHeaderRule_Apply_ForwardWinsOverInsert(t *testing.T) {
	incoming := http.Header{}
	incoming.Set("Authorization", "Bearer client-token")
	incoming.Set("X-Request-Id", "abc-123")

	rule := subgraph.HeaderRule{
		Forward: []string{"Authorization", "X-Request-Id"},
		Insert:  map[string]string{"Authorization": "Bearer service-token"},
	}

	out := rule.Apply(incoming)

	if got := out.Get("Authorization"); got != "Bearer client-token" {
		t.Errorf("Authorization = %q, want the forwarded client token to win over insert", got)
	}
	if got := out.Get("X-Request-Id"); got != "abc-123" {
		t.Errorf("X-Request-Id = %q, want forwarded value", got)
	}
}

func TestHeaderRule_Apply_InsertAppliesWhenNotForwarded(t *testing.T) {
	incoming := http.Header{}
	incoming.Set("X-Tenant-Id", "tenant-1")

	rule := subgraph.HeaderRule{
		Insert: map[string]string{"X-Service-Auth": "internal-secret"},
	}

	out := rule.Apply(incoming)

	if got := out.Get("X-Service-Auth"); got != "internal-secret" {
		t.Errorf("X-Service-Auth = %q, want insert to apply even though it is not forwarded", got)
	}
	if out.Get("X-Tenant-Id") != "" {
		t.Errorf("X-Tenant-Id = %q, want empty since it is never forwarded", out.Get("X-Tenant-Id"))
	}
}

func TestHeaderRule_Apply_RemovePreventsForward(t *testing.T) {
	incoming := http.Header{}
	incoming.Set("Authorization", "Bearer client-token")

	rule := subgraph.HeaderRule{
		Remove:  []string{"Authorization"},
		Forward: []string{"Authorization"},
		Insert:  map[string]string{"Authorization": "Bearer service-token"},
	}

	out := rule.Apply(incoming)

	if got := out.Get("Authorization"); got != "Bearer service-token" {
		t.Errorf("Authorization = %q, want insert to stand since remove stripped the value forward would have copied", got)
	}
}

func TestHeaderRule_Apply_RemoveDropsForwardedHeader(t *testing.T) {
	incoming := http.Header{}
	incoming.Set("Cookie", "session=xyz")

	rule := subgraph.HeaderRule{
		Forward: []string{"Cookie"},
		Remove:  []string{"Cookie"},
	}

	out := rule.Apply(incoming)

	if out.Get("Cookie") != "" {
		t.Errorf("expected Cookie to be removed, got %q", out.Get("Cookie"))
	}
}

func TestHeaderRule_Apply_OnlyForwardsListedHeaders(t *testing.T) {
	incoming := http.Header{}
	incoming.Set("X-Internal-Secret", "should-not-leak")
	incoming.Set("X-Tenant-Id", "tenant-1")

	rule := subgraph.HeaderRule{Forward: []string{"X-Tenant-Id"}}

	out := rule.Apply(incoming)

	if out.Get("X-Internal-Secret") != "" {
		t.Errorf("unlisted header leaked through: %q", out.Get("X-Internal-Secret"))
	}
	if out.Get("X-Tenant-Id") != "tenant-1" {
		t.Errorf("X-Tenant-Id = %q, want tenant-1", out.Get("X-Tenant-Id"))
	}
}
