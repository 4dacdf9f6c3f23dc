package seed

import (
	"math"
	"math/rand"
	"strconv"
)

// SampleRow is the schema written by the seeder.
type SampleRow struct {
	Name   string  `parquet:"name"`
	Age    int64   `parquet:"age"`
	City   string  `parquet:"city"`
	Score  float64 `parquet:"score"`
	Active bool    `parquet:"active"`
}

var (
	firstNames = []string{"Alice", "Bob", "Cara", "Dan", "Erin", "Farid", "Grace", "Hiro", "Ines", "Jonas"}
	cities     = []string{"London", "Leeds", "Paris", "Berlin", "Lisbon", "Madrid", "Dublin", "Oslo"}
)

type Generator struct {
	rnd      *rand.Rand
	sequence int
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

func (g *Generator) NextRow() SampleRow {
	g.sequence++
	name := firstNames[(g.sequence-1)%len(firstNames)]
	if g.sequence > len(firstNames) {
		name = name + "-" + strconv.Itoa(g.sequence)
	}
	return SampleRow{
		Name:   name,
		Age:    int64(18 + g.rnd.Intn(63)),
		City:   pickOne(g.rnd, cities),
		Score:  round2(g.rnd.Float64() * 100),
		Active: g.rnd.Intn(4) != 0,
	}
}

func (g *Generator) Rows(n int) []SampleRow {
	rows := make([]SampleRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, g.NextRow())
	}
	return rows
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
