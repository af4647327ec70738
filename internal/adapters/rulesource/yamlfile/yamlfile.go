// Package yamlfile reads rule weights from a YAML document, for deployments
// without a shared spreadsheet.
//
//	seasons:
//	  3:
//	    base:
//	      587: 10
//	    time_adjusted:
//	      587: 60
package yamlfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/okian/killpoints/internal/adapters/rulesource"
	"github.com/okian/killpoints/internal/domain/rules"
	"github.com/okian/killpoints/pkg/logger"
)

type document struct {
	Seasons map[int]map[string]map[int64]float64 `yaml:"seasons"`
}

// MissingEntry is one written-back row in the missing file.
type MissingEntry struct {
	Season   int    `yaml:"season"`
	Category string `yaml:"category"`
	TypeID   int64  `yaml:"type_id"`
	Name     string `yaml:"name"`
	Weight   string `yaml:"weight"`
}

// Source is a rules.Source backed by a YAML file.
type Source struct {
	path        string
	missingPath string
	logger      logger.Logger

	mu sync.Mutex
}

// Option configures a Source.
type Option func(*Source)

// WithMissingFile appends written-back rows to path as YAML documents.
// Without it write-back only logs.
func WithMissingFile(path string) Option {
	return func(s *Source) { s.missingPath = path }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a source reading path.
func New(path string, opts ...Option) *Source {
	s := &Source{path: path, logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch reads one category of a season. The file is re-read on every call.
func (s *Source) Fetch(ctx context.Context, season int, category rules.Category) (map[int64]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rulesource.ErrSheetUnavailable, err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", rulesource.ErrSheetUnavailable, s.path, err)
	}
	categories, ok := doc.Seasons[season]
	if !ok {
		return nil, fmt.Errorf("%w: no %s in %s", rulesource.ErrSheetUnavailable, rulesource.SheetName(season), s.path)
	}
	out := make(map[int64]float64, len(categories[category.String()]))
	for id, w := range categories[category.String()] {
		out[id] = w
	}
	return out, nil
}

// WriteBack logs missing rows and appends them to the missing file when configured.
func (s *Source) WriteBack(ctx context.Context, season int, category rules.Category, rows []rules.MissingRow) error {
	if len(rows) == 0 {
		return nil
	}
	for _, r := range rows {
		s.logger.Warn(ctx, "rule weight missing",
			logger.Int("season", season),
			logger.String("category", category.String()),
			logger.Int64("type_id", r.TypeID),
			logger.String("name", r.Name))
	}
	if s.missingPath == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.missingPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %w", rulesource.ErrSheetUnavailable, err)
	}
	for _, r := range rows {
		doc, err := yaml.Marshal(MissingEntry{
			Season:   season,
			Category: category.String(),
			TypeID:   r.TypeID,
			Name:     r.Name,
			Weight:   rulesource.Placeholder,
		})
		if err != nil {
			_ = f.Close()
			return err
		}
		if _, err := f.Write(append([]byte("---\n"), doc...)); err != nil {
			_ = f.Close()
			return fmt.Errorf("%w: %w", rulesource.ErrSheetUnavailable, err)
		}
	}
	return f.Close()
}

// ReadMissing decodes every entry of a missing file.
func ReadMissing(path string) ([]MissingEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []MissingEntry
	dec := yaml.NewDecoder(f)
	for {
		var e MissingEntry
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, e)
	}
}
