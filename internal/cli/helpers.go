// Package cli helper functions shared by the commands.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/onlyoffice/pipedrive-int/internal/api"
	"github.com/onlyoffice/pipedrive-int/internal/auth"
	"github.com/onlyoffice/pipedrive-int/internal/catalog"
	"github.com/onlyoffice/pipedrive-int/internal/config"
	"github.com/onlyoffice/pipedrive-int/internal/host"
	"github.com/onlyoffice/pipedrive-int/internal/models"
)

// ErrFileNotFound is returned when no file in the deal matches the given id.
var ErrFileNotFound = errors.New("file not found in deal")

// loadConfig loads the connector configuration from --config or the default
// location, with environment overrides applied.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return config.Load(path)
}

// session bundles the objects every command needs: config, API client, host
// command channel and the token provider.
type session struct {
	cfg      *config.Config
	client   *api.Client
	commands host.Commands
	tokens   *auth.Provider
}

// newSession loads config and wires the client, host and token provider.
// This is the standard way commands acquire their dependencies.
func newSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	client, err := api.NewClient(cfg, GetLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	commands := host.NewStandalone(cfg.ClientSecret, cfg.UserID, cfg.CompanyID, GetLogger())
	tokens := auth.NewProvider(client.TokenSource(commands), GetLogger())

	return &session{
		cfg:      cfg,
		client:   client,
		commands: commands,
		tokens:   tokens,
	}, nil
}

// accessToken refreshes the CRM access token once and returns it.
func (s *session) accessToken(ctx context.Context) (string, error) {
	if err := s.tokens.Refresh(ctx); err != nil {
		return "", fmt.Errorf("failed to refresh access token: %w", err)
	}
	return s.tokens.AccessToken()
}

// requireDeal resolves the deal the command operates on from --deal.
func requireDeal() (string, error) {
	if dealID == "" {
		return "", errors.New("no deal selected, use --deal")
	}
	return dealID, nil
}

// newCatalog builds a file-list query for the deal bound to the given
// access token.
func (s *session) newCatalog(deal, token string, limit int, opts ...catalog.Option) *catalog.Query {
	return catalog.New(func(ctx context.Context, cursor string, pageSize int) (*models.FileListPage, error) {
		return s.client.ListFiles(ctx, token, deal, cursor, pageSize)
	}, limit, opts...)
}

// findFile pages through the deal's file list until it finds fileID.
func (s *session) findFile(ctx context.Context, deal, token, fileID string) (models.File, error) {
	query := s.newCatalog(deal, token, 50)
	if err := query.Fetch(ctx); err != nil {
		return models.File{}, err
	}
	for {
		for _, f := range query.Files() {
			if f.ID == fileID {
				return f, nil
			}
		}
		if !query.HasNextPage() {
			return models.File{}, fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
		}
		if err := query.FetchNextPage(ctx); err != nil {
			return models.File{}, err
		}
	}
}
