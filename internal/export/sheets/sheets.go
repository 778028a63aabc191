// Package sheets appends exported transactions to a Google Sheets tab.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"moneytrack/internal/core"
	"moneytrack/internal/export"
	"moneytrack/internal/log"
)

// Credentials selects the service account. JSON wins over File.
type Credentials struct {
	JSON string
	File string
}

// NewService builds a Sheets service from service-account credentials. Extra
// client options are appended, which tests use to point at a fake endpoint.
func NewService(ctx context.Context, creds Credentials, opts ...goption.ClientOption) (*gsheet.Service, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(creds.JSON) != "":
		credentialsJSON = []byte(creds.JSON)
	case strings.TrimSpace(creds.File) != "":
		b, err := os.ReadFile(creds.File)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}

	all := append([]goption.ClientOption{
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, opts...)
	svc, err := gsheet.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

func NewExporter(svc *gsheet.Service, spreadsheetID, sheetName string, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.Discard()
	}
	return &Exporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger.WithComponent(log.ComponentExport),
	}
}

// Rows converts transactions to sheet values. Amounts are numbers so the
// sheet can sum them; withHeader prepends the column titles.
func Rows(txs []core.Transaction, withHeader bool) [][]any {
	out := make([][]any, 0, len(txs)+1)
	if withHeader {
		head := make([]any, len(export.Header))
		for i, h := range export.Header {
			head[i] = h
		}
		out = append(out, head)
	}
	for _, t := range txs {
		rec := export.Record(t)
		amount, _ := t.Amount.Decimal().Float64()
		out = append(out, []any{rec[0], rec[1], amount, rec[3], rec[4]})
	}
	return out
}

// Append adds one row per transaction below the existing data and returns
// the range the API reports as updated.
func (e *Exporter) Append(ctx context.Context, txs []core.Transaction, withHeader bool) (string, error) {
	if e.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if len(txs) == 0 && !withHeader {
		return "", nil
	}

	rng := fmt.Sprintf("%s!A:E", e.sheetName)
	vr := &gsheet.ValueRange{Values: Rows(txs, withHeader)}

	resp, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", e.sheetName, err)
	}

	updated := ""
	if resp.Updates != nil {
		updated = resp.Updates.UpdatedRange
	}
	e.logger.InfoContext(ctx, "Transactions exported to sheet",
		"sheet", e.sheetName,
		"range", updated,
		log.FieldCount, len(txs))
	return updated, nil
}
