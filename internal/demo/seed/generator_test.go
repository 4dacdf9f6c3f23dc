package seed

import (
	"reflect"
	"testing"
)

func TestGeneratorDeterministicForSeed(t *testing.T) {
	first := NewGenerator(42).Rows(20)
	second := NewGenerator(42).Rows(20)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("rows differ for the same seed")
	}
	if reflect.DeepEqual(first, NewGenerator(7).Rows(20)) {
		t.Fatalf("different seeds produced identical rows")
	}
}

func TestGeneratorRowsAreUniqueAndInRange(t *testing.T) {
	seen := map[string]struct{}{}
	for _, row := range NewGenerator(99).Rows(50) {
		if _, ok := seen[row.Name]; ok {
			t.Fatalf("duplicate name: %s", row.Name)
		}
		seen[row.Name] = struct{}{}
		if row.Age < 18 || row.Age > 80 {
			t.Fatalf("age out of range: %d", row.Age)
		}
		if row.Score < 0 || row.Score > 100 {
			t.Fatalf("score out of range: %v", row.Score)
		}
		if row.City == "" {
			t.Fatalf("empty city in %+v", row)
		}
	}
}
