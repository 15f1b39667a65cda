// Package actions implements the consumers of a walk result: fixture
// export, subgraph cloning, and graph visualization. All of them operate
// on the result's read interface; none of them re-traverse the graph.
package actions

import (
	"fmt"
	"sort"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/dbsmedya/graphwalk/internal/schema"
	"github.com/dbsmedya/graphwalk/internal/scope"
)

// providers maps Anonymize provider names to generators.
var providers = map[string]func() any{
	"name":       func() any { return gofakeit.Name() },
	"first_name": func() any { return gofakeit.FirstName() },
	"last_name":  func() any { return gofakeit.LastName() },
	"email":      func() any { return gofakeit.Email() },
	"username":   func() any { return gofakeit.Username() },
	"phone":      func() any { return gofakeit.Phone() },
	"address":    func() any { return gofakeit.Address().Address },
	"city":       func() any { return gofakeit.City() },
	"country":    func() any { return gofakeit.Country() },
	"company":    func() any { return gofakeit.Company() },
	"url":        func() any { return gofakeit.URL() },
	"uuid":       func() any { return gofakeit.UUID() },
	"word":       func() any { return gofakeit.Word() },
	"sentence":   func() any { return gofakeit.Sentence(8) },
	"ipv4":       func() any { return gofakeit.IPv4Address() },
}

// resolveAnonymize produces the replacement value for an Anonymize
// override. A Func wins over a named provider; unknown provider names are
// an error rather than silently passing the original value through.
func resolveAnonymize(ov scope.Anonymize, rec *schema.Record, ctx scope.Ctx) (any, error) {
	if ov.Func != nil {
		return ov.Func(rec, ctx), nil
	}
	gen, ok := providers[ov.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown anonymize provider %q (pass a Func instead, or use one of the named providers)", ov.Provider)
	}
	return gen(), nil
}

// sortByPK orders records of one type by primary key for deterministic
// output: integer keys numerically, string keys lexically.
func sortByPK(recs []*schema.Record) []*schema.Record {
	out := append([]*schema.Record(nil), recs...)
	sort.SliceStable(out, func(i, j int) bool {
		return pkLess(out[i].PK, out[j].PK)
	})
	return out
}

func pkLess(a, b any) bool {
	ai, aok := pkInt(a)
	bi, bok := pkInt(b)
	if aok && bok {
		return ai < bi
	}
	if aok != bok {
		return aok
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func pkInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}
