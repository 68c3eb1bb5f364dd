package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

// OnlineStatus returns which of the given users are currently online.
func (g *Gateway) OnlineStatus(ctx context.Context, userIDs []string) (map[string]bool, error) {
	data, err := g.doJSON(ctx, http.MethodPost, "/users/online-status", nil, map[string][]string{"userIds": userIDs})
	if err != nil {
		return nil, err
	}
	var status map[string]bool
	if err := decode("/users/online-status", data, &status); err != nil {
		return nil, err
	}
	return status, nil
}

// BlockUser blocks a user.
func (g *Gateway) BlockUser(ctx context.Context, userID string) error {
	endpoint := "/users/" + url.PathEscape(userID) + "/block"
	_, err := g.doJSON(ctx, http.MethodPost, endpoint, nil, nil)
	return err
}

// ReportUser files an abuse report against a user.
func (g *Gateway) ReportUser(ctx context.Context, userID, reason string) error {
	endpoint := "/users/" + url.PathEscape(userID) + "/report"
	_, err := g.doJSON(ctx, http.MethodPost, endpoint, nil, map[string]string{"reason": reason})
	return err
}

// UploadResponse is returned by the file upload endpoint.
type UploadResponse struct {
	URL string `json:"url"`
}

// UploadFile uploads an attachment via multipart form and returns its URL.
func (g *Gateway) UploadFile(ctx context.Context, filename string, r io.Reader) (*UploadResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("/files: create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("/files: copy file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("/files: finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.requestURL("/files", nil), &buf)
	if err != nil {
		return nil, fmt.Errorf("/files: build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	data, err := g.do(req, "/files")
	if err != nil {
		return nil, err
	}
	var resp UploadResponse
	if err := decode("/files", data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
