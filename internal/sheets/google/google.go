// Package google mirrors ledger transactions into a Google Sheets tab.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"billetera/internal/core"
	ports "billetera/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Ensure interface conformance
var _ ports.TransactionMirror = (*Client)(nil)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// Options configures New. Exactly one of CredentialsJSON and
// CredentialsFile is used; JSON wins when both are set.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// New creates a Sheets client authenticated with a service account.
// Extra client options are appended after the credentials.
func New(ctx context.Context, o Options, extra ...goption.ClientOption) (*Client, error) {
	spreadsheetID := strings.TrimSpace(o.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName := strings.TrimSpace(o.SheetName)
	if sheetName == "" {
		return nil, errors.New("missing sheet name")
	}

	opts, err := credentialOptions(ctx, o)
	if err != nil {
		return nil, err
	}
	opts = append(opts, extra...)

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets mirror ready",
		"component", "sheets",
		"spreadsheet_id", spreadsheetID,
		"sheet", sheetName)

	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

func credentialOptions(ctx context.Context, o Options) ([]goption.ClientOption, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(o.CredentialsJSON) != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		credentialsJSON = []byte(o.CredentialsJSON)
	case strings.TrimSpace(o.CredentialsFile) != "":
		b, err := os.ReadFile(o.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		// Credentials supplied by the caller through extra options.
		return nil, nil
	}
	return []goption.ClientOption{
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, nil
}

// AppendTransaction adds one row for tx unless a row with its id exists.
func (c *Client) AppendTransaction(ctx context.Context, tx core.Transaction, balance decimal.Decimal) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", core.ErrInvalidInput)
	}

	row, err := c.findRow(ctx, tx.ID)
	if err != nil {
		return err
	}
	if row >= 0 {
		slog.DebugContext(ctx, "Transaction already mirrored", "transaction_id", tx.ID, "row", row+1)
		return nil
	}

	rng := fmt.Sprintf("%s!A:H", c.sheetName)
	vr := &gsheet.ValueRange{Values: [][]any{formatRow(tx, balance)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", c.sheetName, err)
	}

	ref := ""
	if resp.Updates != nil {
		ref = resp.Updates.UpdatedRange
	}
	slog.InfoContext(ctx, "Mirrored transaction",
		"component", "sheets",
		"transaction_id", tx.ID,
		"user_id", tx.UserID,
		"sheets_ref", ref)
	return nil
}

// DeleteTransaction removes the row whose column A equals transactionID.
// A missing row is not an error.
func (c *Client) DeleteTransaction(ctx context.Context, transactionID string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	row, err := c.findRow(ctx, transactionID)
	if err != nil {
		return err
	}
	if row < 0 {
		slog.DebugContext(ctx, "Transaction not mirrored, nothing to delete", "transaction_id", transactionID)
		return nil
	}

	sheetID, err := c.sheetID(ctx)
	if err != nil {
		return err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(row),
					EndIndex:   int64(row) + 1,
				},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d in %s: %w", row+1, c.sheetName, err)
	}

	slog.InfoContext(ctx, "Removed mirrored transaction",
		"component", "sheets",
		"transaction_id", transactionID,
		"row", row+1)
	return nil
}

// EnsureHeader writes the column header when the tab is empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A1:H1", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	if len(resp.Values) > 0 {
		return nil
	}
	vr := &gsheet.ValueRange{Values: [][]any{Header}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// findRow returns the zero-based row index holding id, or -1.
func (c *Client) findRow(ctx context.Context, id string) (int, error) {
	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return -1, fmt.Errorf("read %s: %w", rng, err)
	}
	return indexOfID(resp.Values, id), nil
}

func (c *Client) sheetID(ctx context.Context) (int64, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == c.sheetName {
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", c.sheetName)
}
