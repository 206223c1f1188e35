package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxJSONBody bounds JSON request bodies; drafts are the largest payload
const maxJSONBody = 1 << 20

// ParseJSON decodes the JSON request body into dest
func ParseJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// PathParam returns a trimmed path wildcard value
func PathParam(r *http.Request, name string) string {
	return strings.TrimSpace(r.PathValue(name))
}
