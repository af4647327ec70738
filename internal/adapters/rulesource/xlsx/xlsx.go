// Package xlsx reads rule weights from a local workbook laid out like the
// shared rule sheet.
package xlsx

import (
	"context"
	"fmt"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/okian/killpoints/internal/adapters/rulesource"
	"github.com/okian/killpoints/internal/domain/rules"
	"github.com/okian/killpoints/pkg/logger"
)

// Source is a rules.Source backed by an .xlsx file.
type Source struct {
	path   string
	logger logger.Logger

	mu sync.Mutex // the workbook is reopened per call; writes must not interleave
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a source reading the workbook at path.
func New(path string, opts ...Option) *Source {
	s := &Source{path: path, logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch reads the weights of one category from the season sheet.
func (s *Source) Fetch(ctx context.Context, season int, category rules.Category) (map[int64]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", rulesource.ErrSheetUnavailable, s.path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(rulesource.SheetName(season))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rulesource.ErrSheetUnavailable, err)
	}
	return rulesource.ParseRows(rulesource.Pairs(rows, category)), nil
}

// WriteBack appends missing rows below the category's last used row and saves the workbook.
func (s *Source) WriteBack(ctx context.Context, season int, category rules.Category, rows []rules.MissingRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", rulesource.ErrSheetUnavailable, s.path, err)
	}
	defer f.Close()

	sheet := rulesource.SheetName(season)
	existing, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("%w: %w", rulesource.ErrSheetUnavailable, err)
	}

	start := rulesource.NextRow(rulesource.Pairs(existing, category))
	col := rulesource.ColumnIndex(category)
	for i, values := range rulesource.WriteBackValues(rows) {
		axis, err := excelize.CoordinatesToCellName(col, start+i)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, axis, &values); err != nil {
			return fmt.Errorf("%w: %w", rulesource.ErrSheetUnavailable, err)
		}
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("%w: save %s: %w", rulesource.ErrSheetUnavailable, s.path, err)
	}

	s.logger.Info(ctx, "appended missing rule rows to workbook",
		logger.String("sheet", sheet),
		logger.String("category", category.String()),
		logger.Int("rows", len(rows)),
		logger.Int("start_row", start))
	return nil
}
