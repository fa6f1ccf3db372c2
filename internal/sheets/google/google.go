package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"walletwise/internal/core"
	ports "walletwise/internal/sheets"
)

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string

	// appends compute the next row from the current row count; serialize
	// them so two writers never target the same row
	mu sync.Mutex
}

var _ ports.Mirror = (*Client)(nil)

// New creates a Sheets client. Extra options replace the service account
// credentials, which lets tests point the client at a local endpoint.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheet := strings.TrimSpace(cfg.SheetName)
	if sheet == "" {
		sheet = "Expenses"
	}

	if len(opts) == 0 {
		creds, err := credentialsJSON(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created",
		"spreadsheet_id", cfg.SpreadsheetID,
		"sheet", sheet)

	return &Client{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheet: sheet}, nil
}

// credentialsJSON resolves service account credentials from inline JSON, a
// file, or GOOGLE_APPLICATION_CREDENTIALS, in that order.
func credentialsJSON(ctx context.Context, cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.ServiceAccountJSON)
	file := strings.TrimSpace(cfg.ServiceAccountFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		slog.DebugContext(ctx, "Reading service account credentials", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// Append writes e on the first empty row, adding the header row to an empty sheet.
func (c *Client) Append(ctx context.Context, e core.Expense) (string, error) {
	if e.ID <= 0 || e.IdempotencyKey == "" {
		return "", fmt.Errorf("append: expense must be stored before mirroring (id=%d)", e.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.sheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get sheet dimensions for %s: %w", c.sheet, err)
	}
	nextRow := len(resp.Values) + 1

	if nextRow == 1 {
		if err := c.update(ctx, 1, header); err != nil {
			return "", fmt.Errorf("write header: %w", err)
		}
		nextRow = 2
	}

	if err := c.update(ctx, nextRow, formatRow(e)); err != nil {
		return "", err
	}
	return rowRange(c.sheet, nextRow), nil
}

func (c *Client) update(ctx context.Context, row int, values []any) error {
	rng := rowRange(c.sheet, row)
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// FindRow scans the key column for idempotencyKey.
func (c *Client) FindRow(ctx context.Context, idempotencyKey string) (string, bool, error) {
	rng := fmt.Sprintf("%s!%s:%s", c.sheet, keyColumn, keyColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", rng, err)
	}
	row := findKeyRow(resp.Values, idempotencyKey)
	if row == 0 {
		return "", false, nil
	}
	return rowRange(c.sheet, row), true, nil
}
