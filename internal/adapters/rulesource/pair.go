package rulesource

import "github.com/okian/killpoints/internal/domain/rules"

// Pairs slices the column pair of a category out of whole-sheet rows.
// rows[0] is sheet row 1; the result starts at FirstRow.
func Pairs(rows [][]string, c rules.Category) [][]string {
	col := ColumnIndex(c) - 1
	if col < 0 || len(rows) < FirstRow {
		return nil
	}
	out := make([][]string, 0, len(rows)-FirstRow+1)
	for _, row := range rows[FirstRow-1:] {
		pair := make([]string, 0, 2)
		for i := col; i < col+2 && i < len(row); i++ {
			pair = append(pair, row[i])
		}
		out = append(out, pair)
	}
	return out
}

// NextRow returns the sheet row below the last non-empty row of a pair
// listing. pairs[0] is FirstRow.
func NextRow(pairs [][]string) int {
	last := -1
	for i, p := range pairs {
		for _, v := range p {
			if v != "" {
				last = i
				break
			}
		}
	}
	return FirstRow + last + 1
}
