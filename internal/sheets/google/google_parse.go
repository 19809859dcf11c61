package google

import (
	"fmt"
	"strconv"
	"strings"
)

// rowIndexByID returns the 1-based sheet row whose first cell holds id, or
// 0 when absent. Values may arrive as strings or numbers depending on how the
// cell was written.
func rowIndexByID(values [][]interface{}, id int64) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if cellID, ok := parseID(row[0]); ok && cellID == id {
			return i + 1
		}
	}
	return 0
}

func parseID(cell interface{}) (int64, bool) {
	switch v := cell.(type) {
	case float64:
		return int64(v), v == float64(int64(v))
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		n, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(v)), 10, 64)
		return n, err == nil
	}
}

func toRow(cells []string) []interface{} {
	out := make([]interface{}, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}
