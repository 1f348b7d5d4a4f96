package store

import (
	"testing"

	"github.com/queryfan/queryfan/internal/stand"
)

func TestPivotScalarAggregates(t *testing.T) {
	t.Parallel()

	results := []StandResult{
		{Stand: "prod", Records: []stand.Record{{"count": float64(10)}}},
		{Stand: "staging", Records: []stand.Record{{"count": float64(3)}}},
	}

	pivot := Pivot(results)
	if len(pivot) != 2 {
		t.Fatalf("expected 2 pivot rows, got %d", len(pivot))
	}
	if pivot[0].Stand != "prod" || pivot[0].Value != float64(10) {
		t.Fatalf("unexpected first row: %+v", pivot[0])
	}
	if pivot[1].Stand != "staging" || pivot[1].Value != float64(3) {
		t.Fatalf("unexpected second row: %+v", pivot[1])
	}
}

func TestPivotRejectsOtherShapes(t *testing.T) {
	t.Parallel()

	cases := map[string][]StandResult{
		"empty set": nil,
		"two records": {
			{Stand: "a", Records: []stand.Record{{"n": 1}, {"n": 2}}},
		},
		"two fields": {
			{Stand: "a", Records: []stand.Record{{"n": 1, "m": 2}}},
		},
		"zero records": {
			{Stand: "a", Records: []stand.Record{}},
		},
		"one stand off-shape": {
			{Stand: "a", Records: []stand.Record{{"n": 1}}},
			{Stand: "b", Records: []stand.Record{{"n": 1, "m": 2}}},
		},
	}

	for name, results := range cases {
		if pivot := Pivot(results); pivot != nil {
			t.Fatalf("%s: expected nil pivot, got %+v", name, pivot)
		}
	}
}
