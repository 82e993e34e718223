package database

import (
	"strconv"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

func benchRows(n int) []any {
	rows := make([]any, 0, n)
	for i := range n {
		a := dbtype.Node{Id: int64(i), Labels: []string{"person"}, Props: map[string]any{"name": "p" + strconv.Itoa(i), "age": int64(i % 90)}}
		b := dbtype.Node{Id: int64(i + 1), Labels: []string{"person"}, Props: map[string]any{"name": "q" + strconv.Itoa(i)}}
		rows = append(rows, map[string]any{
			"a": a,
			"r": dbtype.Relationship{Id: int64(i), StartId: a.Id, EndId: b.Id, Type: "KNOWS"},
			"p": dbtype.Path{Nodes: []dbtype.Node{a, b}, Relationships: []dbtype.Relationship{{Id: int64(i), StartId: a.Id, EndId: b.Id}}},
		})
	}
	return rows
}

func BenchmarkNormalizeRows(b *testing.B) {
	rows := benchRows(1000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Normalize(rows)
	}
}

func BenchmarkCheckTraversal(b *testing.B) {
	script := "g.V().hasLabel('person').has('age', P.between(20, 40)).out('knows').groupCount().by(label)"
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = checkTraversal(script, nil)
	}
}
