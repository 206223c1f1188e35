package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEnsureOwner(t *testing.T) {
	tests := []struct {
		name        string
		users       string
		wantID      string
		wantMethods []string
	}{
		{
			name:        "creates missing user",
			users:       `{"users":[]}`,
			wantID:      "new-id",
			wantMethods: []string{"GET", "POST"},
		},
		{
			name:        "promotes existing user",
			users:       `{"users":[{"id":"u1","email":"Owner@Example.com","app_metadata":{}}]}`,
			wantID:      "u1",
			wantMethods: []string{"GET", "PUT"},
		},
		{
			name:        "already owner",
			users:       `{"users":[{"id":"u1","email":"owner@example.com","app_metadata":{"role":"owner"}}]}`,
			wantID:      "u1",
			wantMethods: []string{"GET"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var methods []string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				methods = append(methods, r.Method)
				if r.Header.Get("apikey") != "service-key" {
					t.Errorf("missing apikey header")
				}
				switch r.Method {
				case http.MethodGet:
					w.Write([]byte(tt.users))
				case http.MethodPost:
					var req CreateUserRequest
					json.NewDecoder(r.Body).Decode(&req)
					if req.AppMetadata["role"] != "owner" || !req.EmailConfirm {
						t.Errorf("unexpected create payload: %+v", req)
					}
					w.WriteHeader(http.StatusCreated)
					w.Write([]byte(`{"id":"new-id","email":"owner@example.com"}`))
				case http.MethodPut:
					if r.URL.Path != "/auth/v1/admin/users/u1" {
						t.Errorf("PUT path = %s", r.URL.Path)
					}
					w.Write([]byte(`{}`))
				}
			}))
			defer srv.Close()

			c := NewAdminClient(srv.URL+"/", "service-key")
			id, err := c.EnsureOwner(context.Background(), "owner@example.com", "pw")
			if err != nil {
				t.Fatalf("EnsureOwner() error = %v", err)
			}
			if id != tt.wantID {
				t.Errorf("id = %q, want %q", id, tt.wantID)
			}
			if len(methods) != len(tt.wantMethods) {
				t.Fatalf("methods = %v, want %v", methods, tt.wantMethods)
			}
			for i := range methods {
				if methods[i] != tt.wantMethods[i] {
					t.Errorf("methods = %v, want %v", methods, tt.wantMethods)
				}
			}
		})
	}
}

func TestAdminClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewAdminClient(srv.URL, "k")
	if _, err := c.FindUserByEmail(context.Background(), "x@example.com"); err == nil {
		t.Fatal("expected error for 403")
	}
}
