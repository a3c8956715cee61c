package supabase

import (
	"strings"
)

// Filter is a PostgREST horizontal filter: column=op.value.
type Filter struct {
	Column string
	Op     string
	Value  string
}

// Eq matches rows where column equals value.
func Eq(column, value string) Filter {
	return Filter{Column: column, Op: "eq", Value: value}
}

// ILike matches rows where column contains value, ignoring case.
// PostgREST uses * as the wildcard in URLs.
func ILike(column, value string) Filter {
	return Filter{Column: column, Op: "ilike", Value: "*" + escapeLike(value) + "*"}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "*", "", "%", `\%`, "_", `\_`)

// escapeLike neutralises LIKE wildcards in user input. PostgREST rewrites
// every * to %, so * cannot be escaped and is dropped instead.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
