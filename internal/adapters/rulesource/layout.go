// Package rulesource holds the sheet layout shared by the rule sources.
//
// Every season lives on a sheet named "Season <id>". Each weight category
// occupies a column pair (type id, weight) starting at row 3; missing type ids
// are appended below the last row as (type id, "TODO", type name).
package rulesource

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/killpoints/internal/domain/rules"
)

// FirstRow is the first data row of every column pair.
const FirstRow = 3

// Placeholder marks a written-back row that still needs a weight.
const Placeholder = "TODO"

var columns = map[rules.Category]string{
	rules.Base:           "A",
	rules.RarityAdjusted: "E",
	rules.RiskAdjusted:   "I",
	rules.TimeAdjusted:   "M",
}

// SheetName returns the sheet of a season.
func SheetName(season int) string {
	return fmt.Sprintf("Season %d", season)
}

// Column returns the letter of the type id column of a category.
func Column(c rules.Category) string {
	return columns[c]
}

// ColumnIndex returns the 1-based index of the type id column of a category.
func ColumnIndex(c rules.Category) int {
	col := Column(c)
	if col == "" {
		return 0
	}
	return int(col[0]-'A') + 1
}

// Shift returns the column n letters to the right of col. Only single letters are used.
func Shift(col string, n int) string {
	return string(rune(col[0]) + rune(n))
}

// ParseRows reads (type id, weight) pairs. Weights may use a decimal comma.
// Rows that do not parse, including placeholders, are skipped.
func ParseRows(rows [][]string) map[int64]float64 {
	out := make(map[int64]float64, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
		if err != nil {
			continue
		}
		w, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(row[1]), ",", "."), 64)
		if err != nil {
			continue
		}
		out[id] = w
	}
	return out
}

// WriteBackValues renders missing rows as sheet values.
func WriteBackValues(rows []rules.MissingRow) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = []any{r.TypeID, Placeholder, r.Name}
	}
	return out
}
