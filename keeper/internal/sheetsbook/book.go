// Package sheetsbook stores tabs in a Google Sheets spreadsheet. Each tab
// is a sheet whose first row is the header; body position p lives on
// sheet row p+2.
package sheetsbook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/hazyhaar/profkeeper/keeper/internal/tabular"
)

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID   string
	CredentialsFile string
	// Endpoint overrides the API base URL.
	Endpoint string
}

// Book is one spreadsheet.
type Book struct {
	svc *sheets.Service
	id  string
}

// New authenticates with the service account in cfg.CredentialsFile and
// returns a Book for cfg.SpreadsheetID.
func New(ctx context.Context, cfg Config) (*Book, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("sheetsbook: spreadsheet id required")
	}
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheetsbook: read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("sheetsbook: parse credentials: %w", err)
	}
	opts := []option.ClientOption{option.WithCredentials(creds)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheetsbook: new service: %w", err)
	}
	return &Book{svc: svc, id: cfg.SpreadsheetID}, nil
}

// NewWithClient builds a Book over an already configured HTTP client,
// pointing the API at endpoint.
func NewWithClient(ctx context.Context, spreadsheetID, endpoint string, hc *http.Client) (*Book, error) {
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(hc), option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("sheetsbook: new service: %w", err)
	}
	return &Book{svc: svc, id: spreadsheetID}, nil
}

// Tab finds the sheet titled name, adding it when missing, and writes
// header to row 1 when that row is empty.
func (b *Book) Tab(ctx context.Context, name string, header []string) (tabular.Store, error) {
	sheetID, err := b.sheetID(ctx, name)
	if err != nil {
		return nil, err
	}
	t := &Tab{svc: b.svc, spreadsheet: b.id, name: name, sheetID: sheetID}

	got, err := b.svc.Spreadsheets.Values.Get(b.id, t.rng("1:1")).Context(ctx).Do()
	if err != nil {
		return nil, mapErr("read header", err)
	}
	if len(got.Values) == 0 && len(header) > 0 {
		_, err := b.svc.Spreadsheets.Values.Update(b.id, t.rng("A1"),
			&sheets.ValueRange{Values: [][]interface{}{toCells(header)}}).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return nil, mapErr("write header", err)
		}
	}
	return t, nil
}

func (b *Book) sheetID(ctx context.Context, name string) (int64, error) {
	ss, err := b.svc.Spreadsheets.Get(b.id).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, mapErr("get spreadsheet", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == name {
			return s.Properties.SheetId, nil
		}
	}

	resp, err := b.svc.Spreadsheets.BatchUpdate(b.id, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: name}},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return 0, mapErr("add sheet "+name, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil {
		return 0, fmt.Errorf("sheetsbook: add sheet %s: empty reply", name)
	}
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

// Tab is one sheet. Positions past the end are rejected by the API as
// grid-limit errors, which surface as ErrOutOfRange; negative positions
// are refused locally.
type Tab struct {
	svc         *sheets.Service
	spreadsheet string
	name        string
	sheetID     int64
}

func (t *Tab) rng(a1 string) string {
	return "'" + strings.ReplaceAll(t.name, "'", "''") + "'!" + a1
}

func (t *Tab) ReadAll(ctx context.Context) ([][]string, error) {
	resp, err := t.svc.Spreadsheets.Values.Get(t.spreadsheet, t.rng("A2:ZZ")).Context(ctx).Do()
	if err != nil {
		return nil, mapErr("read", err)
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprint(v)
		}
		out[i] = cells
	}
	return out, nil
}

var updatedRowRe = regexp.MustCompile(`![A-Z]+(\d+)`)

func (t *Tab) Append(ctx context.Context, row []string) (int, error) {
	resp, err := t.svc.Spreadsheets.Values.Append(t.spreadsheet, t.rng("A1"),
		&sheets.ValueRange{Values: [][]interface{}{toCells(row)}}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return 0, mapErr("append", err)
	}
	if resp.Updates == nil {
		return 0, errors.New("sheetsbook: append: no update range in response")
	}
	m := updatedRowRe.FindStringSubmatch(resp.Updates.UpdatedRange)
	if m == nil {
		return 0, fmt.Errorf("sheetsbook: append: unexpected range %q", resp.Updates.UpdatedRange)
	}
	n, _ := strconv.Atoi(m[1])
	return n - 2, nil
}

func (t *Tab) InsertAt(ctx context.Context, pos int, row []string) error {
	if pos < 0 {
		return tabular.ErrOutOfRange
	}
	err := t.batch(ctx, "insert", &sheets.Request{
		InsertDimension: &sheets.InsertDimensionRequest{Range: t.rows(pos, 1)},
	})
	if err != nil {
		return err
	}
	return t.UpdateRange(ctx, pos, [][]string{row})
}

func (t *Tab) UpdateRange(ctx context.Context, pos int, rows [][]string) error {
	if pos < 0 {
		return tabular.ErrOutOfRange
	}
	if len(rows) == 0 {
		return nil
	}
	values := make([][]interface{}, len(rows))
	for i, r := range rows {
		values[i] = toCells(r)
	}
	_, err := t.svc.Spreadsheets.Values.Update(t.spreadsheet, t.rng("A"+strconv.Itoa(pos+2)),
		&sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	return mapErr("update", err)
}

func (t *Tab) DeleteAt(ctx context.Context, pos int) error {
	if pos < 0 {
		return tabular.ErrOutOfRange
	}
	return t.batch(ctx, "delete", &sheets.Request{
		DeleteDimension: &sheets.DeleteDimensionRequest{Range: t.rows(pos, 1)},
	})
}

// ReplaceAll overwrites the body in place and clears what is left below
// it only after the new rows are written, so a failed call leaves either
// the old body or a mix of old and new rows, never an empty tab.
func (t *Tab) ReplaceAll(ctx context.Context, rows [][]string) error {
	old, err := t.ReadAll(ctx)
	if err != nil {
		return err
	}
	n := min(len(old), len(rows))
	head := make([][]string, n)
	for i := range head {
		head[i] = padTo(rows[i], len(old[i]))
	}
	if err := t.UpdateRange(ctx, 0, head); err != nil {
		return err
	}
	if len(rows) > n {
		values := make([][]interface{}, 0, len(rows)-n)
		for _, r := range rows[n:] {
			values = append(values, toCells(r))
		}
		_, err := t.svc.Spreadsheets.Values.Append(t.spreadsheet, t.rng("A1"),
			&sheets.ValueRange{Values: values}).
			ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		if err != nil {
			return mapErr("append", err)
		}
	}
	if len(old) > len(rows) {
		_, err := t.svc.Spreadsheets.Values.Clear(t.spreadsheet, t.rng("A"+strconv.Itoa(len(rows)+2)+":ZZ"),
			&sheets.ClearValuesRequest{}).Context(ctx).Do()
		if err != nil {
			return mapErr("clear", err)
		}
	}
	return nil
}

// padTo blanks the cells an older, wider row left past the end of row.
func padTo(row []string, width int) []string {
	if len(row) >= width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}

// rows converts a body span to a sheet dimension range (0-based, the
// header occupies index 0).
func (t *Tab) rows(pos, n int) *sheets.DimensionRange {
	return &sheets.DimensionRange{
		SheetId:         t.sheetID,
		Dimension:       "ROWS",
		StartIndex:      int64(pos + 1),
		EndIndex:        int64(pos + 1 + n),
		ForceSendFields: []string{"SheetId", "StartIndex"},
	}
}

func (t *Tab) batch(ctx context.Context, op string, req *sheets.Request) error {
	_, err := t.svc.Spreadsheets.BatchUpdate(t.spreadsheet, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{req},
	}).Context(ctx).Do()
	return mapErr(op, err)
}

func toCells(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

var gridLimitRe = regexp.MustCompile(`(?i)exceeds grid limits|outside the grid`)

// mapErr wraps err, tagging quota refusals with tabular.ErrThrottled and
// writes past the sheet grid with tabular.ErrOutOfRange.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("sheetsbook: %s: %w: %v", op, tabular.ErrThrottled, err)
		case gerr.Code == http.StatusBadRequest && gridLimitRe.MatchString(gerr.Message):
			return fmt.Errorf("sheetsbook: %s: %w: %v", op, tabular.ErrOutOfRange, err)
		}
	}
	return fmt.Errorf("sheetsbook: %s: %w", op, err)
}
