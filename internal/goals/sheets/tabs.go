// Package sheets stores goals and team membership in a Google Sheets spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Tabs is the tab-level access the goal store needs.
type Tabs interface {
	// Ensure creates the tab with header when it does not exist and reports
	// whether it was created.
	Ensure(ctx context.Context, tab string, header []string) (bool, error)
	// Read returns every row of the tab, header included.
	Read(ctx context.Context, tab string) ([][]string, error)
	// Overwrite clears the tab and writes rows from A1.
	Overwrite(ctx context.Context, tab string, rows [][]any) error
}

// Credentials selects the service account used to reach the API.
type Credentials struct {
	File string
	JSON string
}

// ErrNoCredentials is returned when neither a credentials file nor inline JSON is set.
var ErrNoCredentials = errors.New("sheets: no service account credentials")

// SheetsTabs implements Tabs on the Sheets v4 API.
type SheetsTabs struct {
	svc           *sheets.Service
	spreadsheetID string
	logger        *slog.Logger
}

// Connect authenticates with a service account and opens the spreadsheet named by
// sheet, which may be a full URL or a bare id.
func Connect(ctx context.Context, sheet string, creds Credentials, logger *slog.Logger) (*SheetsTabs, error) {
	var raw []byte
	switch {
	case creds.File != "":
		data, err := os.ReadFile(creds.File)
		if err != nil {
			return nil, fmt.Errorf("sheets: read credentials: %w", err)
		}
		raw = data
	case creds.JSON != "":
		raw = []byte(creds.JSON)
	default:
		return nil, ErrNoCredentials
	}
	cfg, err := google.JWTConfigFromJSON(raw, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("sheets: parse credentials: %w", err)
	}
	return NewTabs(ctx, sheet, logger, option.WithHTTPClient(cfg.Client(ctx)))
}

// NewTabs opens the spreadsheet with explicit client options.
func NewTabs(ctx context.Context, sheet string, logger *slog.Logger, opts ...option.ClientOption) (*SheetsTabs, error) {
	id, err := SpreadsheetID(sheet)
	if err != nil {
		return nil, err
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: new service: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SheetsTabs{svc: svc, spreadsheetID: id, logger: logger.With(slog.String("component", "sheets"))}, nil
}

var spreadsheetURL = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)
var bareID = regexp.MustCompile(`^[a-zA-Z0-9-_]+$`)

// SpreadsheetID extracts the spreadsheet id from a URL or validates a bare id.
func SpreadsheetID(sheet string) (string, error) {
	sheet = strings.TrimSpace(sheet)
	if m := spreadsheetURL.FindStringSubmatch(sheet); len(m) == 2 {
		return m[1], nil
	}
	if bareID.MatchString(sheet) {
		return sheet, nil
	}
	return "", fmt.Errorf("sheets: invalid spreadsheet reference %q", sheet)
}

func (t *SheetsTabs) Ensure(ctx context.Context, tab string, header []string) (bool, error) {
	doc, err := t.svc.Spreadsheets.Get(t.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("sheets: get spreadsheet: %w", err)
	}
	for _, s := range doc.Sheets {
		if s.Properties != nil && s.Properties.Title == tab {
			return false, nil
		}
	}

	t.logger.Warn("tab missing, creating it", slog.String("tab", tab))
	req := &sheets.BatchUpdateSpreadsheetRequest{Requests: []*sheets.Request{
		{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: tab}}},
	}}
	if _, err := t.svc.Spreadsheets.BatchUpdate(t.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return false, fmt.Errorf("sheets: add tab %s: %w", tab, err)
	}
	row := make([]any, len(header))
	for i, h := range header {
		row[i] = h
	}
	_, err = t.svc.Spreadsheets.Values.Update(t.spreadsheetID, tab+"!A1", &sheets.ValueRange{Values: [][]any{row}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return true, fmt.Errorf("sheets: write header %s: %w", tab, err)
	}
	return true, nil
}

func (t *SheetsTabs) Read(ctx context.Context, tab string) ([][]string, error) {
	resp, err := t.svc.Spreadsheets.Values.Get(t.spreadsheetID, tab).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: read %s: %w", tab, err)
	}
	rows := make([][]string, len(resp.Values))
	for i, values := range resp.Values {
		rows[i] = make([]string, len(values))
		for j, v := range values {
			rows[i][j] = cellString(v)
		}
	}
	t.logger.Debug("tab read", slog.String("tab", tab), slog.Int("rows", len(rows)))
	return rows, nil
}

func (t *SheetsTabs) Overwrite(ctx context.Context, tab string, rows [][]any) error {
	if _, err := t.svc.Spreadsheets.Values.Clear(t.spreadsheetID, tab, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("sheets: clear %s: %w", tab, err)
	}
	_, err := t.svc.Spreadsheets.Values.Update(t.spreadsheetID, tab+"!A1", &sheets.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: write %s: %w", tab, err)
	}
	t.logger.Info("tab written", slog.String("tab", tab), slog.Int("rows", len(rows)))
	return nil
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
