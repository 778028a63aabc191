// Package export projects loaded transactions into flat rows: a CSV file and
// a spreadsheet append. Neither touches the network for data.
package export

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"moneytrack/internal/core"
)

// Header is the fixed column order of every export.
var Header = []string{"Date", "Title", "Amount", "Type", "Category"}

const localeLayout = "2/1/2006"

var ErrBadHeader = errors.New("unexpected CSV header")

// FileName is the download name for an export produced at now.
func FileName(now time.Time) string {
	return fmt.Sprintf("expenses-%s.csv", now.Format("2006-01-02"))
}

// Record is the row projection shared by the CSV and spreadsheet exports.
func Record(t core.Transaction) []string {
	return []string{
		t.Date.Locale(),
		t.Title,
		t.Amount.String(),
		string(t.Type),
		t.Category,
	}
}

// WriteCSV writes the header and one row per transaction, in list order.
// The title is always quoted with embedded quotes doubled; other fields are
// quoted only when they need it.
func WriteCSV(w io.Writer, txs []core.Transaction) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(Header, ",") + "\n"); err != nil {
		return err
	}
	for _, t := range txs {
		rec := Record(t)
		fields := make([]string, len(rec))
		for i, v := range rec {
			if i == 1 {
				fields[i] = quote(v)
			} else {
				fields[i] = quoteIfNeeded(v)
			}
		}
		if _, err := bw.WriteString(strings.Join(fields, ",") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteIfNeeded(s string) string {
	if s == "" || !strings.ContainsAny(s, ",\"\r\n") && s[0] != ' ' {
		return s
	}
	return quote(s)
}

// ReadCSV parses a file written by WriteCSV. Row ids are not part of the
// format, so returned transactions have none.
func ReadCSV(r io.Reader) ([]core.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	head, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrBadHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, h := range Header {
		if strings.TrimSpace(head[i]) != h {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrBadHeader, i+1, head[i], h)
		}
	}

	var out []core.Transaction
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		t, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, t)
	}
}

func parseRecord(rec []string) (core.Transaction, error) {
	var t core.Transaction

	if d := strings.TrimSpace(rec[0]); d != "" {
		parsed, err := time.Parse(localeLayout, d)
		if err != nil {
			return t, fmt.Errorf("%w: %q", core.ErrInvalidDate, d)
		}
		t.Date = core.DateOf(parsed)
	}
	t.Title = rec[1]

	amount, err := core.ParseAmount(rec[2])
	if err != nil {
		return t, fmt.Errorf("amount %q: %w", rec[2], err)
	}
	t.Amount = amount

	typ, err := core.ParseTransactionType(rec[3])
	if err != nil {
		return t, err
	}
	t.Type = typ
	t.Category = rec[4]
	return t, nil
}
