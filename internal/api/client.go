// Package api implements the typed client for the document gateway and the
// CRM REST surface it proxies.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"

	"github.com/onlyoffice/pipedrive-int/internal/config"
	"github.com/onlyoffice/pipedrive-int/internal/httpx"
	"github.com/onlyoffice/pipedrive-int/internal/logging"
	"github.com/onlyoffice/pipedrive-int/internal/models"
)

// appContextHeader authenticates gateway calls issued from inside the CRM
// modal (or with a token the standalone host signed).
const appContextHeader = "X-Pipedrive-App-Context"

// Client is the gateway/CRM API client. Reads ride a short-timeout retrying
// client; uploads get their own client with a longer budget.
type Client struct {
	readClient   *nethttp.Client
	uploadClient *nethttp.Client
	gatewayURL   string
	crmURL       string
	cfg          *config.Config
	logger       *logging.Logger
}

// NewClient creates an API client from the connector configuration.
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	if cfg.GatewayURL == "" {
		return nil, config.ErrMissingGatewayURL
	}
	if cfg.CRMURL == "" {
		return nil, config.ErrMissingCRMURL
	}

	return &Client{
		readClient:   httpx.NewClient(httpx.ReadPolicy(), logger),
		uploadClient: httpx.NewClient(httpx.UploadPolicy(), logger),
		gatewayURL:   strings.TrimSuffix(cfg.GatewayURL, "/"),
		crmURL:       strings.TrimSuffix(cfg.CRMURL, "/"),
		cfg:          cfg,
		logger:       logger,
	}, nil
}

// doJSON performs a JSON request with a per-call deadline and decodes the
// response into out (skipped when out is nil).
func (c *Client) doJSON(ctx context.Context, client *nethttp.Client, method, url string, headers map[string]string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.Read())
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, nethttp.StatusOK, nethttp.StatusCreated, nethttp.StatusNoContent); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// checkStatus converts a non-expected status into a *httpx.StatusError
// carrying a body excerpt.
func checkStatus(resp *nethttp.Response, want ...int) error {
	for _, code := range want {
		if resp.StatusCode == code {
			return nil
		}
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &httpx.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func appContext(token string) map[string]string {
	return map[string]string{appContextHeader: token}
}

// GetMe returns the acting user's gateway identity, including a short-lived
// CRM access token.
func (c *Client) GetMe(ctx context.Context, contextToken string) (*models.MeResponse, error) {
	var me models.MeResponse
	if err := c.doJSON(ctx, c.readClient, nethttp.MethodGet, c.gatewayURL+"/api/me", appContext(contextToken), nil, &me); err != nil {
		return nil, fmt.Errorf("get me failed: %w", err)
	}
	return &me, nil
}

// GetCRMUser returns the acting user's CRM profile (name, email, locale).
func (c *Client) GetCRMUser(ctx context.Context, accessToken string) (*models.CRMUser, error) {
	var resp models.CRMUserResponse
	if err := c.doJSON(ctx, c.readClient, nethttp.MethodGet, c.crmURL+"/api/v1/users/me", bearer(accessToken), nil, &resp); err != nil {
		return nil, fmt.Errorf("get CRM user failed: %w", err)
	}
	if !resp.Success {
		return nil, errors.New("get CRM user failed: CRM reported failure")
	}
	return &resp.Data, nil
}

// GetSettings returns the company's document-server settings.
func (c *Client) GetSettings(ctx context.Context, contextToken string) (*models.Settings, error) {
	var settings models.Settings
	if err := c.doJSON(ctx, c.readClient, nethttp.MethodGet, c.gatewayURL+"/api/settings", appContext(contextToken), nil, &settings); err != nil {
		return nil, fmt.Errorf("get settings failed: %w", err)
	}
	return &settings, nil
}

// PostSettings stores the company's document-server settings.
func (c *Client) PostSettings(ctx context.Context, contextToken string, settings models.Settings) error {
	if err := c.doJSON(ctx, c.readClient, nethttp.MethodPost, c.gatewayURL+"/api/settings", appContext(contextToken), settings, nil); err != nil {
		return fmt.Errorf("post settings failed: %w", err)
	}
	return nil
}

// BuildEditorConfig resolves the editor widget configuration for a document.
// The signed token inside req authenticates the call.
func (c *Client) BuildEditorConfig(ctx context.Context, req models.EditorConfigRequest) (*models.EditorConfig, error) {
	var cfg models.EditorConfig
	if err := c.doJSON(ctx, c.readClient, nethttp.MethodPost, c.gatewayURL+"/api/config", appContext(req.Token), req, &cfg); err != nil {
		return nil, fmt.Errorf("build editor config failed: %w", err)
	}
	return &cfg, nil
}
