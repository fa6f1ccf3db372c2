package google

import (
	"fmt"
	"strconv"
	"strings"

	"walletwise/internal/core"
)

// header is written to row 1 of an empty sheet. The key column is last so
// FindRow can read a single column.
var header = []any{"Date", "Description", "Amount", "Category", "ID", "Idempotency Key"}

const keyColumn = "F"

// formatRow renders e in header order. Amount is a plain decimal string so
// USER_ENTERED parses it as a number in any spreadsheet locale that uses a dot.
func formatRow(e core.Expense) []any {
	return []any{
		e.Date.String(),
		e.Description,
		e.Amount.String(),
		string(e.Category),
		strconv.FormatInt(e.ID, 10),
		e.IdempotencyKey,
	}
}

// findKeyRow returns the 1-based row whose first cell equals key, or 0.
// values is the key column as returned by the Sheets API; row 1 is the header.
func findKeyRow(values [][]any, key string) int {
	for i, row := range values {
		if i == 0 || len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == key {
			return i + 1
		}
	}
	return 0
}

func rowRange(sheet string, row int) string {
	return fmt.Sprintf("%s!A%d:%s%d", sheet, row, keyColumn, row)
}
