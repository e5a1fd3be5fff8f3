package remote

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNotFound is matched by an APIError carrying a 404 status
var ErrNotFound = errors.New("remote entity not found")

// Entity is a folder or file as the remote service returns it
type Entity struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type,omitempty"`
	Remark     string         `json:"remark,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// EntityRequest is the body of create and update calls. Server generated
// fields are never sent.
type EntityRequest struct {
	Name       string         `json:"name"`
	Type       string         `json:"type,omitempty"`
	Remark     string         `json:"remark,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Page is one page of a listing
type Page struct {
	Items []Entity `json:"items"`
	Total int      `json:"total"`
	Page  int      `json:"page"`
	Size  int      `json:"size"`
}

// Last reports whether no further page needs to be fetched
func (p *Page) Last(fetched int) bool {
	if len(p.Items) == 0 || len(p.Items) < p.Size {
		return true
	}
	return p.Total > 0 && fetched >= p.Total
}

// APIError represents an error response from the API
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.Code, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// StatusClass returns "4xx" or "5xx" (or the bare code for anything else)
func (e *APIError) StatusClass() string {
	switch {
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return "4xx"
	case e.StatusCode >= 500 && e.StatusCode < 600:
		return "5xx"
	default:
		return fmt.Sprintf("%d", e.StatusCode)
	}
}
