package profile

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ehr/profileapi/internal/platform/supabase"
)

func newRESTTestRepo(t *testing.T, h http.HandlerFunc) Repository {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	client, err := supabase.New(srv.URL, "anon", 2*time.Second)
	if err != nil {
		t.Fatalf("supabase.New() error: %v", err)
	}
	return NewRESTRepo(client, "profiles")
}

func TestRESTRepo_GetByID(t *testing.T) {
	repo := newRESTTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("id") != "eq.u1" || q.Get("select") != "id,name,role" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"id":"u1","name":"Alice","role":"patient"}`))
	})

	p, err := repo.GetByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "u1" || p.Name != "Alice" || p.Role != "patient" {
		t.Errorf("unexpected profile %+v", p)
	}
}

func TestRESTRepo_GetByID_NotSingle(t *testing.T) {
	repo := newRESTTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotAcceptable)
		w.Write([]byte(`{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned"}`))
	})

	_, err := repo.GetByID(context.Background(), "u2")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRESTRepo_GetByID_ServerError(t *testing.T) {
	repo := newRESTTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := repo.GetByID(context.Background(), "u1")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *supabase.APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("expected APIError cause, got %v", err)
	}
}

func TestRESTRepo_ListByRole(t *testing.T) {
	repo := newRESTTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("role") != "eq.doctor" {
			t.Errorf("unexpected role filter %q", q.Get("role"))
		}
		if q.Get("name") != "ilike.*ann*" {
			t.Errorf("unexpected name filter %q", q.Get("name"))
		}
		if q.Get("order") != "name.asc.nullslast" {
			t.Errorf("unexpected order %q", q.Get("order"))
		}
		w.Write([]byte(`[{"id":"d1","name":"Dr Ann","role":"doctor"}]`))
	})

	got, err := repo.ListByRole(context.Background(), RoleDoctor, "ann")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "d1" {
		t.Errorf("unexpected rows %+v", got)
	}
}

func TestRESTRepo_ListByRole_NoNameFilter(t *testing.T) {
	repo := newRESTTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("name") {
			t.Errorf("expected no name filter, got %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[]`))
	})

	got, err := repo.ListByRole(context.Background(), RoleDoctor, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}
