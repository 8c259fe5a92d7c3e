package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ContentTypePDF is the media type of rendered memos.
const ContentTypePDF = "application/pdf"

// ErrInvalidName is returned when a document name cannot be used as a flat file name.
var ErrInvalidName = errors.New("delivery: invalid document name")

// Document is a fully rendered file ready to be handed to a sink.
type Document struct {
	Name        string
	ContentType string
	Body        []byte
}

// Sink stores or uploads a document and returns the URL it can be fetched from.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, doc Document) (string, error)
	Check(ctx context.Context) error
}

// Doer performs a single outbound HTTP call. resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

func validateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed != name || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func contentType(doc Document) string {
	if doc.ContentType != "" {
		return doc.ContentType
	}
	return ContentTypePDF
}

// UpstreamError describes a non-2xx answer from a remote sink.
type UpstreamError struct {
	Sink   string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Sink, e.Status)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Sink, e.Status, e.Body)
}

// openCircuit returns the breaker rejection when d is guarded by a tripped
// circuit breaker.
func openCircuit(d Doer) error {
	guarded, ok := d.(interface{ OpenCircuit() error })
	if !ok {
		return nil
	}
	return guarded.OpenCircuit()
}
