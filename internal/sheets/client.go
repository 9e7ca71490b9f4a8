// Package sheets reads script worksheets from a Google spreadsheet using
// a service-account credential.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	sheetsapi "google.golang.org/api/sheets/v4"
	"google.golang.org/api/option"

	"github.com/eden-chang/mas-bot/internal/script"
)

// Client fetches worksheet rows. Reads are throttled so a burst of
// commands cannot trip the per-minute read quota.
type Client struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	minGap        time.Duration

	mu       sync.Mutex
	lastRead time.Time
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	CredentialsFile string
	SpreadsheetID   string
	MinRequestGap   time.Duration // defaults to 700ms
}

// NewClient authenticates with the service-account JSON key and builds a
// read-only Sheets client.
func NewClient(ctx context.Context, opts ClientOpts) (*Client, error) {
	if opts.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheets: spreadsheet id is required")
	}
	data, err := os.ReadFile(opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheets: read credentials: %w", err)
	}
	jwtCfg, err := google.JWTConfigFromJSON(data, sheetsapi.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("sheets: parse credentials: %w", err)
	}
	svc, err := sheetsapi.NewService(ctx, option.WithHTTPClient(jwtCfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("sheets: build service: %w", err)
	}
	gap := opts.MinRequestGap
	if gap <= 0 {
		gap = 700 * time.Millisecond
	}
	return &Client{svc: svc, spreadsheetID: opts.SpreadsheetID, minGap: gap}, nil
}

// FetchCollection returns the script rows of the named worksheet as
// account / interval / text triples, in sheet order starting at row 2.
// The header row decides which column holds which field; sheets whose
// headers are unrecognized fall back to the first three columns.
func (c *Client) FetchCollection(ctx context.Context, name string) ([][]string, error) {
	header, err := c.Range(ctx, name, "A1:Z1")
	if err != nil {
		return nil, err
	}
	cols := columnsFromHeader(header)

	data, err := c.Range(ctx, name, "A2:Z")
	if err != nil {
		return nil, err
	}
	out := make([][]string, 0, len(data))
	for _, row := range data {
		out = append(out, []string{pick(row, cols.account), pick(row, cols.interval), pick(row, cols.text)})
	}
	return out, nil
}

// Range fetches an arbitrary cell range from a worksheet with all cells
// rendered as strings.
func (c *Client) Range(ctx context.Context, worksheet, span string) ([][]string, error) {
	c.throttle()
	rng := fmt.Sprintf("'%s'!%s", strings.ReplaceAll(worksheet, "'", "''"), span)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, mapErr(worksheet, err)
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, 0, len(raw))
		for _, cell := range raw {
			row = append(row, cellString(cell))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WorksheetNames lists the worksheet titles of the spreadsheet.
func (c *Client) WorksheetNames(ctx context.Context) ([]string, error) {
	c.throttle()
	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, &script.TransportError{Err: err}
	}
	names := make([]string, 0, len(resp.Sheets))
	for _, sh := range resp.Sheets {
		if sh.Properties != nil {
			names = append(names, sh.Properties.Title)
		}
	}
	return names, nil
}

// throttle enforces the minimum gap between reads.
func (c *Client) throttle() {
	c.mu.Lock()
	wait := c.minGap - time.Since(c.lastRead)
	if wait > 0 {
		time.Sleep(wait)
	}
	c.lastRead = time.Now()
	c.mu.Unlock()
}

// mapErr classifies an API failure. A 404, or the 400 the API returns
// when a range names a worksheet that does not exist, means the
// worksheet is missing; anything else is a transport failure.
func mapErr(worksheet string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == 404 {
			return fmt.Errorf("%w: %s", script.ErrNotFound, worksheet)
		}
		if gerr.Code == 400 && strings.Contains(gerr.Message, "Unable to parse range") {
			return fmt.Errorf("%w: %s", script.ErrNotFound, worksheet)
		}
	}
	return &script.TransportError{Err: err}
}

// header keywords accepted for each script column.
var (
	accountHeaders  = []string{"계정", "account", "아이디"}
	intervalHeaders = []string{"간격", "interval", "시간"}
	textHeaders     = []string{"문구", "내용", "text", "본문"}
)

type columnMap struct {
	account, interval, text int
}

// columnsFromHeader resolves the script columns from the header row.
// Unmatched fields keep the conventional A/B/C positions.
func columnsFromHeader(header [][]string) columnMap {
	cols := columnMap{account: 0, interval: 1, text: 2}
	if len(header) == 0 {
		return cols
	}
	for i, cell := range header[0] {
		name := strings.ToLower(strings.TrimSpace(cell))
		switch {
		case matchHeader(name, accountHeaders):
			cols.account = i
		case matchHeader(name, intervalHeaders):
			cols.interval = i
		case matchHeader(name, textHeaders):
			cols.text = i
		}
	}
	return cols
}

func matchHeader(name string, keywords []string) bool {
	for _, kw := range keywords {
		if name == kw {
			return true
		}
	}
	return false
}

// pick returns the cell at index i, or "" when the row is shorter.
func pick(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// cellString renders an API cell value. Numeric cells come back as
// float64; whole numbers must not grow a decimal point or interval
// parsing breaks.
func cellString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
