package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strconv"
)

// WriteCSV writes one row per model. The quality columns are added when any
// model had configurations checked.
func WriteCSV(w io.Writer, results []ModelStats) error {
	withQuality := false
	for _, r := range results {
		if r.Checked > 0 {
			withQuality = true
			break
		}
	}

	cw := csv.NewWriter(w)
	header := []string{"model", "estimated", "exact", "error"}
	if withQuality {
		header = append(header, "checked", "satisfied", "quality")
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range results {
		row := []string{r.Model, intString(r.Estimated), intString(r.Exact), r.Err}
		if withQuality {
			quality := ""
			if q, ok := r.Quality(); ok {
				quality = strconv.FormatFloat(q, 'f', -1, 64)
			}
			row = append(row, strconv.Itoa(r.Checked), strconv.Itoa(r.Satisfied), quality)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row for %s: %w", r.Model, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteJSON writes results as an indented JSON array.
func WriteJSON(w io.Writer, results []ModelStats) error {
	if results == nil {
		results = []ModelStats{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func intString(n *big.Int) string {
	if n == nil {
		return ""
	}
	return n.String()
}
