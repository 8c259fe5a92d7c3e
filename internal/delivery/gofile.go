package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

const maxUpstreamBody = 1 << 20

// GofileSink uploads documents to a GoFile compatible upload server.
type GofileSink struct {
	Client    Doer
	UploadURL string
	Token     string
}

type gofileResponse struct {
	Status string `json:"status"`
	Data   struct {
		DownloadPage string `json:"downloadPage"`
		FileID       string `json:"fileId"`
	} `json:"data"`
}

func (s *GofileSink) Name() string { return "gofile" }

// Deliver posts the document as the "file" form field and returns the
// download page reported by the server.
func (s *GofileSink) Deliver(ctx context.Context, doc Document) (string, error) {
	if err := validateName(doc.Name); err != nil {
		return "", err
	}
	if s.Client == nil {
		return "", errors.New("gofile: http client not configured")
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, doc.Name))
	header.Set("Content-Type", contentType(doc))
	part, err := form.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("gofile: build form: %w", err)
	}
	if _, err := part.Write(doc.Body); err != nil {
		return "", fmt.Errorf("gofile: build form: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("gofile: build form: %w", err)
	}

	endpoint := strings.TrimRight(s.UploadURL, "/") + "/uploadfile"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("gofile: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := s.Client.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("gofile: upload: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return "", fmt.Errorf("gofile: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &UpstreamError{Sink: s.Name(), Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var payload gofileResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("gofile: decode response: %w", err)
	}
	if payload.Status != "ok" {
		return "", fmt.Errorf("gofile: upload rejected with status %q", payload.Status)
	}
	link := strings.TrimSpace(payload.Data.DownloadPage)
	if link == "" {
		return "", errors.New("gofile: response missing downloadPage")
	}
	return link, nil
}

// Check reports whether the upload endpoint is configured.
func (s *GofileSink) Check(context.Context) error {
	if strings.TrimSpace(s.UploadURL) == "" {
		return errors.New("gofile: upload url not configured")
	}
	return openCircuit(s.Client)
}
