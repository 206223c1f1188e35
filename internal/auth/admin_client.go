package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"figmant/internal/domain/models"
)

// AdminClient talks to the Supabase Auth admin API with the service role key.
// Only cmd/seed uses it, to provision owner accounts.
type AdminClient struct {
	supabaseURL string
	serviceKey  string
	httpClient  *http.Client
}

// NewAdminClient creates a new Supabase Admin API client
func NewAdminClient(supabaseURL, serviceKey string) *AdminClient {
	return &AdminClient{
		supabaseURL: strings.TrimRight(supabaseURL, "/"),
		serviceKey:  serviceKey,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateUserRequest is the payload for creating a user
type CreateUserRequest struct {
	Email        string                 `json:"email"`
	Password     string                 `json:"password"`
	EmailConfirm bool                   `json:"email_confirm"`
	AppMetadata  map[string]interface{} `json:"app_metadata,omitempty"`
}

// User is the subset of the admin API user object we read
type User struct {
	ID          string                 `json:"id"`
	Email       string                 `json:"email"`
	AppMetadata map[string]interface{} `json:"app_metadata"`
}

type listUsersResponse struct {
	Users []User `json:"users"`
}

// EnsureOwner makes sure a confirmed user with app_metadata.role = owner
// exists for email, creating it or promoting the existing account.
// Returns the user's UUID.
func (c *AdminClient) EnsureOwner(ctx context.Context, email, password string) (string, error) {
	existing, err := c.FindUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	if existing == nil {
		var created User
		err := c.do(ctx, http.MethodPost, "/auth/v1/admin/users", CreateUserRequest{
			Email:        email,
			Password:     password,
			EmailConfirm: true,
			AppMetadata:  map[string]interface{}{"role": models.OwnerRole},
		}, &created)
		if err != nil {
			return "", fmt.Errorf("create user: %w", err)
		}
		return created.ID, nil
	}

	if role, _ := existing.AppMetadata["role"].(string); role == models.OwnerRole {
		return existing.ID, nil
	}

	update := map[string]interface{}{"app_metadata": map[string]interface{}{"role": models.OwnerRole}}
	if err := c.do(ctx, http.MethodPut, "/auth/v1/admin/users/"+existing.ID, update, nil); err != nil {
		return "", fmt.Errorf("promote user: %w", err)
	}
	return existing.ID, nil
}

// FindUserByEmail returns nil if no user has the email
func (c *AdminClient) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var list listUsersResponse
	if err := c.do(ctx, http.MethodGet, "/auth/v1/admin/users", nil, &list); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for _, u := range list.Users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, nil
}

func (c *AdminClient) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.supabaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(data))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
