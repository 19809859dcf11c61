package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"finbot/internal/core"
	applog "finbot/internal/log"
	ports "finbot/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client mirrors ledger transactions into one sheet of a spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *applog.Logger
}

var _ ports.Mirror = (*Client)(nil)

// Credentials locate a service account key. JSON wins over File.
type Credentials struct {
	JSON string
	File string
}

func (c Credentials) load() ([]byte, error) {
	switch {
	case strings.TrimSpace(c.JSON) != "":
		return []byte(c.JSON), nil
	case strings.TrimSpace(c.File) != "":
		b, err := os.ReadFile(c.File)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, spreadsheetID, sheetName string, creds Credentials, logger *applog.Logger) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Transacoes"
	}

	credentialsJSON, err := creds.load()
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	logger = logger.WithComponent(applog.ComponentSheets)
	logger.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", spreadsheetID, "sheet", sheetName)

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
	}, nil
}

// AppendTransaction adds tx as a new row. Redelivered events find their id
// already in column A and are skipped.
func (c *Client) AppendTransaction(ctx context.Context, tx core.Transaction) error {
	ids, err := c.readIDs(ctx)
	if err != nil {
		return err
	}
	if rowIndexByID(ids, tx.ID) > 0 {
		c.logger.DebugContext(ctx, "Row already mirrored", applog.FieldTransactionID, tx.ID)
		return nil
	}

	var values [][]interface{}
	if len(ids) == 0 {
		values = append(values, toRow(ports.Header))
	}
	values = append(values, toRow(ports.Row(tx)))

	rng := fmt.Sprintf("%s!A:F", c.sheetName)
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append transaction %d: %w", tx.ID, err)
	}

	c.logger.InfoContext(ctx, "Transaction mirrored", applog.FieldTransactionID, tx.ID)
	return nil
}

// RemoveTransaction clears the row whose column A holds id.
func (c *Client) RemoveTransaction(ctx context.Context, id int64) (bool, error) {
	ids, err := c.readIDs(ctx)
	if err != nil {
		return false, err
	}
	row := rowIndexByID(ids, id)
	if row == 0 {
		return false, nil
	}

	rng := fmt.Sprintf("%s!A%d:F%d", c.sheetName, row, row)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return false, fmt.Errorf("clear row %d: %w", row, err)
	}

	c.logger.InfoContext(ctx, "Transaction row cleared", applog.FieldTransactionID, id, "row", row)
	return true, nil
}

func (c *Client) readIDs(ctx context.Context) ([][]interface{}, error) {
	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read id column: %w", err)
	}
	return resp.Values, nil
}
