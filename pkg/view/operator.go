package view

import (
	"slices"
	"strings"
)

// DefaultOperator is used when a filter key carries no operator token.
const DefaultOperator = "eq"

// operators is the complete whitelist of comparison operators a caller may select.
var operators = map[string]string{
	"eq":   "=",
	"neq":  "<>",
	"lt":   "<",
	"lte":  "<=",
	"gt":   ">",
	"gte":  ">=",
	"like": "LIKE",
}

// ResolveOperator maps an operator token (case-insensitive) to its SQL operator.
// Tokens outside the whitelist are rejected; there is no fallback.
func ResolveOperator(token string) (string, error) {
	if op, ok := operators[strings.ToLower(token)]; ok {
		return op, nil
	}
	return "", ValidationError("Operator shorthand '%s' is not allowed.", token)
}

// Operators returns the accepted tokens in sorted order.
func Operators() []string {
	tokens := make([]string, 0, len(operators))
	for token := range operators {
		tokens = append(tokens, token)
	}
	slices.Sort(tokens)
	return tokens
}
