package emulator

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	queryPattern   = regexp.MustCompile(`^SELECT \* FROM root r(?: WHERE (.+?))?(?: ORDER BY (.+))?$`)
	orderByPattern = regexp.MustCompile(`^r((?:\.[A-Za-z_$][A-Za-z0-9_$]*)+)$`)
	paramPattern   = regexp.MustCompile(`@p[0-9]+`)
)

// queryPlan is a parsed document query.
type queryPlan struct {
	// predicate is the WHERE clause as a script expression over r and __p,
	// empty when every document matches.
	predicate string
	// orderBy holds JSON paths such as $."storeId" for json_extract.
	orderBy []string
}

// parseQuery accepts the query shape produced by the compiler.
func parseQuery(text string) (*queryPlan, error) {
	m := queryPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return nil, fmt.Errorf("unsupported query: %q", text)
	}

	plan := &queryPlan{}
	if m[1] != "" {
		plan.predicate = scriptPredicate(m[1])
	}
	if m[2] != "" {
		for _, col := range strings.Split(m[2], ",") {
			col = strings.TrimSpace(col)
			cm := orderByPattern.FindStringSubmatch(col)
			if cm == nil {
				return nil, fmt.Errorf("unsupported ORDER BY column %q", col)
			}
			plan.orderBy = append(plan.orderBy, jsonPath(cm[1]))
		}
	}
	return plan, nil
}

// scriptPredicate rewrites a WHERE clause into a script expression.
// Literals never appear in compiled predicates, so the rewrite only has to
// handle parameters and the operators the two languages spell differently.
func scriptPredicate(where string) string {
	expr := paramPattern.ReplaceAllStringFunc(where, func(name string) string {
		return `__p["` + name + `"]`
	})
	expr = strings.ReplaceAll(expr, "<>", "!=")
	return strings.ReplaceAll(expr, " AND ", " && ")
}

// jsonPath converts ".a.b" to $."a"."b".
func jsonPath(dotted string) string {
	var sb strings.Builder
	sb.WriteString("$")
	for _, seg := range strings.Split(strings.TrimPrefix(dotted, "."), ".") {
		sb.WriteString(`."`)
		sb.WriteString(seg)
		sb.WriteString(`"`)
	}
	return sb.String()
}
