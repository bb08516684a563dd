// Package sheets exports tables to a Google Sheets spreadsheet, one tab per
// table.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"lifesync/internal/export"
	"lifesync/internal/log"
)

type Config struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	logger        *log.Logger
}

var _ export.Exporter = (*Client)(nil)

// New authenticates with a service account from cfg.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(ctx, cfg.SpreadsheetID, logger,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

// NewWithOptions builds a client from raw API options. Tests point it at a
// local endpoint.
func NewWithOptions(ctx context.Context, spreadsheetID string, logger *log.Logger, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, logger: logger.WithComponent(log.ComponentExport)}, nil
}

func credentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		raw, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return raw, nil
	}
	return nil, errors.New("missing service account credentials")
}

// Export replaces the contents of the tab named after t, creating the tab
// when it does not exist yet.
func (c *Client) Export(ctx context.Context, t export.Table) error {
	tab := tabName(t.Name)
	if err := c.ensureTab(ctx, tab); err != nil {
		return err
	}
	rng := quote(tab)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", tab, err)
	}
	values := make([][]any, 0, len(t.Rows)+1)
	if len(t.Header) > 0 {
		values = append(values, cells(t.Header))
	}
	for _, r := range t.Rows {
		values = append(values, cells(r))
	}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng+"!A1", &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", tab, err)
	}
	c.logger.InfoContext(ctx, "exported table", log.FieldExporter, "sheets", "tab", tab, log.FieldRecords, len(t.Rows))
	return nil
}

func (c *Client) ensureTab(ctx context.Context, tab string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == tab {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: tab}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add tab %s: %w", tab, err)
	}
	return nil
}

func cells(row []string) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

// tabName keeps a title within the 100 characters Sheets allows.
func tabName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Export"
	}
	if r := []rune(name); len(r) > 100 {
		name = string(r[:100])
	}
	return name
}

// quote wraps a tab title for A1 notation.
func quote(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}
