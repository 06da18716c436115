// Package google mirrors ledger movements to a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"davi/internal/core"
	ports "davi/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Columns A:H hold date, movement id, user id, kind, bucket id, parent id,
// description and signed amount.
const columns = "A:H"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// sheetBase is prefixed with the movement year, e.g. "2025 Ledger".
	sheetBase string
}

var (
	_ ports.LedgerWriter = (*Client)(nil)
	_ ports.LedgerReader = (*Client)(nil)
)

// New creates a Sheets client authenticated with a service account.
// Credentials come from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, spreadsheetID, sheetBase string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetBase = strings.TrimSpace(sheetBase)
	if sheetBase == "" {
		sheetBase = "Ledger"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credentialsJSON, err := loadCredentials()
	if err != nil {
		return nil, err
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "component", "sheets")
	return service, nil
}

func loadCredentials() ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// AppendMovements writes one row per movement to the sheet of the
// movement's year. The returned reference lists every updated range.
func (c *Client) AppendMovements(ctx context.Context, ms []core.Movement) (string, error) {
	if len(ms) == 0 {
		return "", nil
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	var refs []string
	for _, year := range yearsOf(ms) {
		sheet := yearPrefixedName(c.sheetBase, year)

		var values [][]any
		for _, m := range ms {
			if m.Date.Year() == year {
				values = append(values, rowValues(ports.RowOf(m)))
			}
		}

		resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, sheet+"!"+columns,
			&gsheet.ValueRange{Values: values}).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		if err != nil {
			return strings.Join(refs, ","), fmt.Errorf("append to sheet %s: %w", sheet, err)
		}
		if resp.Updates != nil {
			refs = append(refs, resp.Updates.UpdatedRange)
		}
	}
	return strings.Join(refs, ","), nil
}

// ListRows reads back the mirrored rows of one year. The header row and
// rows that do not parse are skipped.
func (c *Client) ListRows(ctx context.Context, year int) ([]ports.Row, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}

	rng := yearPrefixedName(c.sheetBase, year) + "!" + columns
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	var out []ports.Row
	for _, raw := range resp.Values {
		if r, ok := parseRow(toStrings(raw)); ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func rowValues(r ports.Row) []any {
	return []any{
		r.Date.String(),
		r.MovementID,
		r.UserID,
		string(r.Kind),
		optionalID(r.BucketID),
		optionalID(r.ParentID),
		r.Description,
		r.Amount.String(),
	}
}

func optionalID(id int64) any {
	if id == 0 {
		return ""
	}
	return id
}

func parseRow(cells []string) (ports.Row, bool) {
	if len(cells) < 8 {
		return ports.Row{}, false
	}
	date, err := core.ParseDate(cells[0])
	if err != nil {
		return ports.Row{}, false
	}
	movementID, err := strconv.ParseInt(cells[1], 10, 64)
	if err != nil {
		return ports.Row{}, false
	}
	amount, err := core.ParseMoney(cells[7])
	if err != nil {
		return ports.Row{}, false
	}

	userID, _ := strconv.ParseInt(cells[2], 10, 64)
	bucketID, _ := strconv.ParseInt(cells[4], 10, 64)
	parentID, _ := strconv.ParseInt(cells[5], 10, 64)

	return ports.Row{
		Date:        date,
		MovementID:  movementID,
		UserID:      userID,
		Kind:        core.Kind(strings.ToLower(cells[3])),
		BucketID:    bucketID,
		ParentID:    parentID,
		Description: cells[6],
		Amount:      amount,
	}, true
}

func yearsOf(ms []core.Movement) []int {
	seen := map[int]bool{}
	var years []int
	for _, m := range ms {
		y := m.Date.Year()
		if !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
