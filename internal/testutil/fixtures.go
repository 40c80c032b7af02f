// Package testutil provides document schemas and helpers shared by tests.
package testutil

import (
	"github.com/roach88/docagg/internal/ast"
)

// Sale is a source document: one sale at one store.
func Sale() *ast.TypeSchema {
	return ast.MustType("Sale", []ast.Field{
		{Name: "Id", JSONName: "id", Kind: ast.KindString},
		{Name: "PartitionKey", JSONName: "partitionKey", Kind: ast.KindString},
		{Name: "StoreId", JSONName: "storeId", Kind: ast.KindString},
		{Name: "Time", JSONName: "time", Kind: ast.KindDateTime},
		{Name: "Amount", JSONName: "amount", Kind: ast.KindDecimal},
	})
}

// SaleAggregate accumulates sales. SaleAggregate(count) sets Count.
func SaleAggregate() *ast.TypeSchema {
	return ast.MustType("SaleAggregate", []ast.Field{
		{Name: "Count", JSONName: "count", Kind: ast.KindInt},
		{Name: "AverageAmount", JSONName: "averageAmount", Kind: ast.KindDecimal},
		{Name: "TotalAmount", JSONName: "totalAmount", Kind: ast.KindDecimal},
	}, ast.Constructor{Params: []string{"Count"}})
}

// SaleStoreAggregate accumulates sales per store.
func SaleStoreAggregate() *ast.TypeSchema {
	return ast.MustType("SaleStoreAggregate", []ast.Field{
		{Name: "Count", JSONName: "count", Kind: ast.KindInt},
		{Name: "StoreId", JSONName: "storeId", Kind: ast.KindString},
		{Name: "AverageAmount", JSONName: "averageAmount", Kind: ast.KindDecimal},
		{Name: "TotalAmount", JSONName: "totalAmount", Kind: ast.KindDecimal},
	})
}

// SaleSummary is a projected result. Its default AverageAmount is 0.3 and
// SaleSummary(average) overrides it.
func SaleSummary() *ast.TypeSchema {
	return ast.MustType("SaleSummary", []ast.Field{
		{Name: "AverageAmount", JSONName: "averageAmount", Kind: ast.KindDecimal, Default: ast.MustDecimal("0.3")},
		{Name: "TotalAmount", JSONName: "totalAmount", Kind: ast.KindDecimal},
	}, ast.Constructor{Params: []string{"AverageAmount"}})
}

// PrimitiveTypes has one field of every scalar kind and no renames.
func PrimitiveTypes() *ast.TypeSchema {
	return ast.MustType("PrimitiveTypes", []ast.Field{
		{Name: "Boolean", Kind: ast.KindBool},
		{Name: "Char", Kind: ast.KindChar},
		{Name: "Double", Kind: ast.KindFloat},
		{Name: "Int32", Kind: ast.KindInt},
		{Name: "Text", Kind: ast.KindString},
		{Name: "Money", Kind: ast.KindDecimal},
		{Name: "When", Kind: ast.KindDateTime},
		{Name: "Scratch", Kind: ast.KindString, Ignore: true},
	})
}

// Registry returns a registry holding every fixture type.
func Registry() *ast.Registry {
	reg := ast.NewRegistry()
	for _, t := range []*ast.TypeSchema{
		Sale(), SaleAggregate(), SaleStoreAggregate(), SaleSummary(), PrimitiveTypes(),
	} {
		if err := reg.Register(t); err != nil {
			panic(err)
		}
	}
	return reg
}

// Row returns a parameter reference for slot 0 typed as Sale.
func Row(name string) *ast.Param {
	return &ast.Param{Slot: 0, Name: name, TypeName: "Sale"}
}

// Member returns the member access base.<name> resolved against t.
func Member(t *ast.TypeSchema, base ast.Node, name string) *ast.Member {
	f, ok := t.Field(name)
	if !ok {
		panic("unknown field " + t.Name + "." + name)
	}
	return &ast.Member{Base: base, Name: f.Name, JSONName: f.JSONName, Kind: f.Kind, TypeName: f.TypeName}
}
