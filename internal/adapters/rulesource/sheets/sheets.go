// Package sheets reads and writes rule weights through the Google Sheets
// values API.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/okian/killpoints/internal/adapters/rulesource"
	"github.com/okian/killpoints/internal/domain/rules"
	"github.com/okian/killpoints/pkg/logger"
)

const (
	defaultBaseURL = "https://sheets.googleapis.com/v4"
	scope          = "https://www.googleapis.com/auth/spreadsheets"
	defaultTimeout = 30 * time.Second
)

// Source is a rules.Source backed by a Google spreadsheet.
type Source struct {
	spreadsheetID string
	baseURL       string
	client        *http.Client
	logger        logger.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithBaseURL points the source at another values API endpoint.
func WithBaseURL(u string) Option {
	return func(s *Source) {
		if u != "" {
			s.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets an already authorised client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTokenSource authorises requests with ts.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(s *Source) {
		if ts != nil {
			s.client = oauth2.NewClient(context.Background(), ts)
			s.client.Timeout = defaultTimeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a source for the given spreadsheet.
func New(spreadsheetID string, opts ...Option) *Source {
	s := &Source{
		spreadsheetID: spreadsheetID,
		baseURL:       defaultBaseURL,
		client:        &http.Client{Timeout: defaultTimeout},
		logger:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromCredentials authorises with a service account key file.
func NewFromCredentials(ctx context.Context, spreadsheetID, credentialsFile string, opts ...Option) (*Source, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	cfg, err := google.JWTConfigFromJSON(data, scope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	client := cfg.Client(ctx)
	client.Timeout = defaultTimeout
	return New(spreadsheetID, append([]Option{WithHTTPClient(client)}, opts...)...), nil
}

type valueRange struct {
	Range          string  `json:"range,omitempty"`
	MajorDimension string  `json:"majorDimension,omitempty"`
	Values         [][]any `json:"values"`
}

func (s *Source) rangeURL(a1 string) string {
	return fmt.Sprintf("%s/spreadsheets/%s/values/%s",
		s.baseURL, url.PathEscape(s.spreadsheetID), url.PathEscape(a1))
}

// pairRange is the open-ended A1 range of a category's column pair.
func pairRange(season int, c rules.Category) string {
	col := rulesource.Column(c)
	return fmt.Sprintf("%s!%s%d:%s", rulesource.SheetName(season), col, rulesource.FirstRow, rulesource.Shift(col, 1))
}

func (s *Source) get(ctx context.Context, a1 string) ([][]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.rangeURL(a1), nil)
	if err != nil {
		return nil, err
	}
	var vr valueRange
	if err := s.do(req, &vr); err != nil {
		return nil, err
	}
	rows := make([][]string, len(vr.Values))
	for i, row := range vr.Values {
		rows[i] = make([]string, len(row))
		for j, v := range row {
			rows[i][j] = cellString(v)
		}
	}
	return rows, nil
}

func (s *Source) do(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", rulesource.ErrSheetUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: %s", rulesource.ErrSheetUnavailable,
			req.Method, resp.Status, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %w", rulesource.ErrSheetUnavailable, err)
	}
	return nil
}

// Fetch reads the weights of one category from the season sheet.
func (s *Source) Fetch(ctx context.Context, season int, category rules.Category) (map[int64]float64, error) {
	rows, err := s.get(ctx, pairRange(season, category))
	if err != nil {
		return nil, err
	}
	return rulesource.ParseRows(rows), nil
}

// WriteBack appends missing rows below the category's last used row.
func (s *Source) WriteBack(ctx context.Context, season int, category rules.Category, rows []rules.MissingRow) error {
	if len(rows) == 0 {
		return nil
	}
	existing, err := s.get(ctx, pairRange(season, category))
	if err != nil {
		return err
	}

	start := rulesource.NextRow(existing)
	col := rulesource.Column(category)
	a1 := fmt.Sprintf("%s!%s%d:%s%d", rulesource.SheetName(season),
		col, start, rulesource.Shift(col, 2), start+len(rows)-1)

	body, err := json.Marshal(valueRange{
		Range:          a1,
		MajorDimension: "ROWS",
		Values:         rulesource.WriteBackValues(rows),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		s.rangeURL(a1)+"?valueInputOption=USER_ENTERED", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := s.do(req, nil); err != nil {
		return err
	}

	s.logger.Info(ctx, "appended missing rule rows to spreadsheet",
		logger.String("range", a1),
		logger.String("category", category.String()),
		logger.Int("rows", len(rows)))
	return nil
}

func cellString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
