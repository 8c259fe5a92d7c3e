package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// TransferShSink uploads documents to a transfer.sh instance with a raw PUT.
type TransferShSink struct {
	Client  Doer
	BaseURL string
	MaxDays int
}

func (s *TransferShSink) Name() string { return "transfersh" }

// Deliver PUTs the document body and returns the link printed by the server.
func (s *TransferShSink) Deliver(ctx context.Context, doc Document) (string, error) {
	if err := validateName(doc.Name); err != nil {
		return "", err
	}
	if s.Client == nil {
		return "", errors.New("transfersh: http client not configured")
	}
	endpoint := strings.TrimRight(s.BaseURL, "/") + "/" + url.PathEscape(doc.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(doc.Body))
	if err != nil {
		return "", fmt.Errorf("transfersh: %w", err)
	}
	req.ContentLength = int64(len(doc.Body))
	req.Header.Set("Content-Type", contentType(doc))
	if s.MaxDays > 0 {
		req.Header.Set("Max-Days", strconv.Itoa(s.MaxDays))
	}

	resp, err := s.Client.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("transfersh: upload: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return "", fmt.Errorf("transfersh: read response: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &UpstreamError{Sink: s.Name(), Status: resp.StatusCode, Body: text}
	}
	if text == "" {
		return "", errors.New("transfersh: empty response")
	}
	if _, err := url.ParseRequestURI(text); err != nil {
		return "", fmt.Errorf("transfersh: response is not a url: %w", err)
	}
	return text, nil
}

// Check reports whether the upload endpoint is configured.
func (s *TransferShSink) Check(context.Context) error {
	if strings.TrimSpace(s.BaseURL) == "" {
		return errors.New("transfersh: base url not configured")
	}
	return openCircuit(s.Client)
}
