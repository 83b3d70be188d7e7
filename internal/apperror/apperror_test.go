package apperror_test

import (
	"testing"

	"github.com/n9te9/go-graphql-federation-gateway/internal/apperror"
)

func TestNew_SetsExtensionsCode(t *testing.T) {
	err := apperror.New(apperror.RateLimited, "too many requests")
	if err.Message != "too many requests" {
		t.Fatalf("unexpected message: %q", err.Message)
	}
	if got := err.Extensions["code"]; got != string(apperror.RateLimited) {
		t.Fatalf("expected extensions.code %q, got %v", apperror.RateLimited, got)
	}
}

func TestWithPath_AttachesPath(t *testing.T) {
	err := apperror.New(apperror.Internal, "boom").WithPath([]interface{}{"widget", "name"})
	if len(err.Path) != 2 || err.Path[0] != "widget" || err.Path[1] != "name" {
		t.Fatalf("unexpected path: %v", err.Path)
	}
}

func TestGraphQLError_SatisfiesErrorInterface(t *testing.T) {
	var err error = apperror.New(apperror.BadRequest, "missing query")
	if err.Error() != "missing query" {
		t.Fatalf("unexpected Error(): %q", err.Error())
	}
}
