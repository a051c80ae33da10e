package app

import (
	"context"
	"net/http"
	"testing"

	"reflecto/api/internal/search"
)

func TestSearchRequiresQuery(t *testing.T) {
	svc := newTestService(&fakeStore{})
	svc.search = search.NewService(nil, nil)

	_, err := svc.Search(context.Background(), memberSession("usr-1", "org-1"), SearchInput{})
	var derr *DomainError
	if !asDomainError(err, &derr) || derr.Status != http.StatusBadRequest || derr.Code != "VALIDATION_ERROR" {
		t.Fatalf("err = %v, want 400 VALIDATION_ERROR", err)
	}
}

func TestSearchRejectsUnknownType(t *testing.T) {
	svc := newTestService(&fakeStore{})
	svc.search = search.NewService(nil, nil)

	_, err := svc.Search(context.Background(), memberSession("usr-1", "org-1"), SearchInput{Query: "retro", Type: "wiki"})
	var derr *DomainError
	if !asDomainError(err, &derr) || derr.Status != http.StatusBadRequest || derr.Code != "VALIDATION_ERROR" {
		t.Fatalf("err = %v, want 400 VALIDATION_ERROR", err)
	}
}

// A service wired without a search backend must refuse the query
// instead of panicking on the nil facade.
func TestSearchWithoutBackendIsUnavailable(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.Search(context.Background(), memberSession("usr-1", "org-1"), SearchInput{Query: "retro"})
	var derr *DomainError
	if !asDomainError(err, &derr) || derr.Status != http.StatusServiceUnavailable || derr.Code != "SEARCH_UNAVAILABLE" {
		t.Fatalf("err = %v, want 503 SEARCH_UNAVAILABLE", err)
	}
}
