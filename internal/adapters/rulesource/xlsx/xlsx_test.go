package xlsx

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/okian/killpoints/internal/adapters/rulesource"
	"github.com/okian/killpoints/internal/domain/rules"
)

func writeWorkbook(t *testing.T, sheet string, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	_, err := f.NewSheet(sheet)
	require.NoError(t, err)
	for i, row := range rows {
		axis, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		cells := row
		require.NoError(t, f.SetSheetRow(sheet, axis, &cells))
	}
	path := filepath.Join(t.TempDir(), "rules.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func seasonRows() [][]any {
	return [][]any{
		{"Base", "", "", "", "Rarity", "", "", "", "Risk", "", "", "", "Time"},
		{"type", "weight", "", "", "type", "weight", "", "", "type", "weight", "", "", "type", "weight"},
		{587, 10, "", "", 587, 2, "", "", 587, 1, "", "", 587, 60},
		{588, "12,5", "", "", 588, 3, "", "", "", "", "", "", 588, 90},
		{"oops", 4},
	}
}

func TestFetch(t *testing.T) {
	path := writeWorkbook(t, "Season 3", seasonRows())
	src := New(path)
	ctx := context.Background()

	base, err := src.Fetch(ctx, 3, rules.Base)
	require.NoError(t, err)
	assert.Equal(t, map[int64]float64{587: 10, 588: 12.5}, base)

	risk, err := src.Fetch(ctx, 3, rules.RiskAdjusted)
	require.NoError(t, err)
	assert.Equal(t, map[int64]float64{587: 1}, risk)

	tm, err := src.Fetch(ctx, 3, rules.TimeAdjusted)
	require.NoError(t, err)
	assert.Equal(t, map[int64]float64{587: 60, 588: 90}, tm)
}

func TestFetchMissingSheet(t *testing.T) {
	path := writeWorkbook(t, "Season 3", seasonRows())
	_, err := New(path).Fetch(context.Background(), 4, rules.Base)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rulesource.ErrSheetUnavailable))
}

func TestFetchMissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope.xlsx")).Fetch(context.Background(), 1, rules.Base)
	assert.ErrorIs(t, err, rulesource.ErrSheetUnavailable)
}

func TestWriteBack(t *testing.T) {
	path := writeWorkbook(t, "Season 3", seasonRows())
	src := New(path)
	ctx := context.Background()

	err := src.WriteBack(ctx, 3, rules.RiskAdjusted, []rules.MissingRow{
		{TypeID: 11198, Name: "Stiletto"},
		{TypeID: 11200, Name: "Type ID: 11200"},
	})
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	id, err := f.GetCellValue("Season 3", "I4")
	require.NoError(t, err)
	assert.Equal(t, "11198", id)
	marker, err := f.GetCellValue("Season 3", "J4")
	require.NoError(t, err)
	assert.Equal(t, "TODO", marker)
	name, err := f.GetCellValue("Season 3", "K5")
	require.NoError(t, err)
	assert.Equal(t, "Type ID: 11200", name)

	// Placeholder rows are not weights.
	risk, err := src.Fetch(ctx, 3, rules.RiskAdjusted)
	require.NoError(t, err)
	assert.Equal(t, map[int64]float64{587: 1}, risk)
}

func TestWriteBackNothing(t *testing.T) {
	assert.NoError(t, New("unused.xlsx").WriteBack(context.Background(), 1, rules.Base, nil))
}
