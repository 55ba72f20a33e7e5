package sheets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"

	"startup-spark/internal/config"
)

type Client struct {
	srv           *sheetsv4.Service
	spreadsheetID string
	costPerMember int64
	log           *zap.Logger
}

// New returns nil when no spreadsheet is configured.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*Client, error) {
	if cfg.Google.SpreadsheetID == "" || cfg.Google.ServiceAccountJSON == "" {
		return nil, nil
	}
	creds := option.WithCredentialsJSON([]byte(cfg.Google.ServiceAccountJSON))
	// A path to the key file works too.
	if !strings.HasPrefix(strings.TrimSpace(cfg.Google.ServiceAccountJSON), "{") {
		if _, err := os.Stat(cfg.Google.ServiceAccountJSON); err != nil {
			return nil, fmt.Errorf("service account json: %w", err)
		}
		creds = option.WithCredentialsFile(cfg.Google.ServiceAccountJSON)
	}
	return NewWithOptions(ctx, cfg.Google.SpreadsheetID, cfg.Event.CostPerMember, log,
		creds, option.WithScopes(sheetsv4.SpreadsheetsScope))
}

func NewWithOptions(ctx context.Context, spreadsheetID string, costPerMember int64, log *zap.Logger, opts ...option.ClientOption) (*Client, error) {
	srv, err := sheetsv4.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{srv: srv, spreadsheetID: spreadsheetID, costPerMember: costPerMember, log: log}, nil
}

func (c *Client) SpreadsheetID() string { return c.spreadsheetID }
