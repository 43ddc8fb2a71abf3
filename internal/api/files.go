package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/url"

	"github.com/onlyoffice/pipedrive-int/internal/httpx"
	"github.com/onlyoffice/pipedrive-int/internal/models"
)

// MaxUploadSize is the largest file the gateway accepts.
const MaxUploadSize = 20 << 20 // 20 MB

// ErrFileTooLarge is returned before any bytes go on the wire.
var ErrFileTooLarge = fmt.Errorf("file exceeds the %d MB upload limit", MaxUploadSize>>20)

// crmEnvelope wraps single-entity CRM responses.
type crmEnvelope struct {
	Success bool        `json:"success"`
	Data    models.File `json:"data"`
}

// ListFiles fetches one page of the deal's file list. cursor is the opaque
// pagination token from the previous page ("" for the first page).
func (c *Client) ListFiles(ctx context.Context, accessToken, dealID, cursor string, limit int) (*models.FileListPage, error) {
	if limit <= 0 {
		limit = 20
	}

	query := url.Values{}
	query.Set("limit", fmt.Sprintf("%d", limit))
	if cursor != "" {
		query.Set("start", cursor)
	}

	endpoint := fmt.Sprintf("%s/api/v1/deals/%s/files?%s", c.crmURL, url.PathEscape(dealID), query.Encode())

	var page models.FileListPage
	if err := c.doJSON(ctx, c.readClient, nethttp.MethodGet, endpoint, bearer(accessToken), nil, &page); err != nil {
		return nil, fmt.Errorf("list files failed: %w", err)
	}
	return &page, nil
}

// CreateFile asks the gateway to create a blank document of the given type
// ("docx", "xlsx" or "pptx") attached to the deal.
func (c *Client) CreateFile(ctx context.Context, contextToken, dealID, name, fileType string) (*models.File, error) {
	query := url.Values{}
	query.Set("deal_id", dealID)
	query.Set("name", name)
	query.Set("type", fileType)

	endpoint := c.gatewayURL + "/files/create?" + query.Encode()

	var envelope crmEnvelope
	if err := c.doJSON(ctx, c.readClient, nethttp.MethodGet, endpoint, appContext(contextToken), nil, &envelope); err != nil {
		return nil, fmt.Errorf("create file failed: %w", err)
	}
	return &envelope.Data, nil
}

// UploadFile sends one file as a multipart request attached to the deal. The
// whole body is buffered so the retrying transport can rewind it; the 20 MB
// limit keeps that bounded. Cancelling ctx aborts the transfer.
func (c *Client) UploadFile(ctx context.Context, accessToken, dealID, name string, content io.Reader) (*models.File, error) {
	data, err := io.ReadAll(io.LimitReader(content, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload content: %w", err)
	}
	if len(data) > MaxUploadSize {
		return nil, ErrFileTooLarge
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("deal_id", dealID); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.Upload())
	defer cancel()

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, c.crmURL+"/api/v1/files", bytes.NewReader(body.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		// Surface the cancellation signal unwrapped so callers can tell it
		// apart from genuine failures.
		if ctx.Err() != nil && httpx.IsCancellation(ctx.Err()) {
			return nil, context.Canceled
		}
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, nethttp.StatusOK, nethttp.StatusCreated); err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}

	var envelope crmEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	return &envelope.Data, nil
}

// DeleteFile removes a file from the deal.
func (c *Client) DeleteFile(ctx context.Context, accessToken, fileID string) error {
	endpoint := fmt.Sprintf("%s/api/v1/files/%s", c.crmURL, url.PathEscape(fileID))
	if err := c.doJSON(ctx, c.readClient, nethttp.MethodDelete, endpoint, bearer(accessToken), nil, nil); err != nil {
		return fmt.Errorf("delete file failed: %w", err)
	}
	return nil
}

// RenameFile updates a file's display name.
func (c *Client) RenameFile(ctx context.Context, accessToken, fileID, name string) (*models.File, error) {
	endpoint := fmt.Sprintf("%s/api/v1/files/%s", c.crmURL, url.PathEscape(fileID))
	body := map[string]string{"name": name}

	var envelope crmEnvelope
	if err := c.doJSON(ctx, c.readClient, nethttp.MethodPut, endpoint, bearer(accessToken), body, &envelope); err != nil {
		return nil, fmt.Errorf("rename file failed: %w", err)
	}
	return &envelope.Data, nil
}

// DownloadURL resolves a signed, short-lived download URL for a file. The
// CRM answers with a redirect to object storage; the redirect target is the
// value callers open.
func (c *Client) DownloadURL(ctx context.Context, accessToken, fileID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.Read())
	defer cancel()

	endpoint := fmt.Sprintf("%s/api/v1/files/%s/download", c.crmURL, url.PathEscape(fileID))
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	// Stop at the redirect; the Location header is the answer.
	client := *c.readClient
	client.CheckRedirect = func(req *nethttp.Request, via []*nethttp.Request) error {
		return nethttp.ErrUseLastResponse
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download URL request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case nethttp.StatusFound, nethttp.StatusMovedPermanently, nethttp.StatusSeeOther, nethttp.StatusTemporaryRedirect:
		location := resp.Header.Get("Location")
		if location == "" {
			return "", errors.New("download redirect missing Location header")
		}
		return location, nil
	case nethttp.StatusOK:
		// Some gateways answer with JSON instead of redirecting.
		var payload struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return "", fmt.Errorf("failed to decode download response: %w", err)
		}
		if payload.URL == "" {
			return "", errors.New("download response missing url")
		}
		return payload.URL, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &httpx.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}
