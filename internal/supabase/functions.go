// Package supabase holds thin clients for the Supabase REST surfaces the
// backend calls with the service key: edge functions and object storage.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// FunctionError is returned when an edge function answers with a non-2xx status
type FunctionError struct {
	Function string
	Status   int
	Message  string
}

func (e *FunctionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("edge function %s failed with status %d", e.Function, e.Status)
}

// FunctionsClient invokes Supabase edge functions
type FunctionsClient struct {
	supabaseURL string
	serviceKey  string
	httpClient  *http.Client
}

// NewFunctionsClient creates an edge function client. timeout bounds each
// invocation; analysis functions can take minutes.
func NewFunctionsClient(supabaseURL, serviceKey string, timeout time.Duration) *FunctionsClient {
	return &FunctionsClient{
		supabaseURL: strings.TrimRight(supabaseURL, "/"),
		serviceKey:  serviceKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Invoke POSTs payload as JSON to the named function and decodes the
// response into out
func (c *FunctionsClient) Invoke(ctx context.Context, name string, payload, out interface{}) error {
	url := fmt.Sprintf("%s/functions/v1/%s", c.supabaseURL, name)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to invoke %s: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &errBody)
		msg := errBody.Error
		if msg == "" {
			msg = errBody.Message
		}
		return &FunctionError{Function: name, Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", name, err)
	}
	return nil
}
