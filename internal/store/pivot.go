package store

// PivotRow is one (stand, scalar) pair of the derived pivot view.
type PivotRow struct {
	Stand string `json:"stand"`
	Value any    `json:"value"`
}

// Pivot collapses a full per-stand result set to a two-column table when
// every stand's result is exactly one record with exactly one field. That
// shape is what scalar-aggregate queries (row counts and the like) produce.
// Any other shape returns nil and the caller falls back to full tables.
func Pivot(results []StandResult) []PivotRow {
	if len(results) == 0 {
		return nil
	}

	out := make([]PivotRow, 0, len(results))
	for _, res := range results {
		if len(res.Records) != 1 || len(res.Records[0]) != 1 {
			return nil
		}
		for _, v := range res.Records[0] {
			out = append(out, PivotRow{Stand: res.Stand, Value: v})
		}
	}
	return out
}
