package lineage

import "strings"

// reservedWords lists tokens that can follow FROM or JOIN in a definition
// without being an object name. Matching is case-insensitive.
var reservedWords = []string{
	// Query clauses
	"select", "from", "where", "group", "order", "by", "having", "limit",
	"offset", "fetch", "qualify", "window", "over", "partition", "rows",
	"range", "distinct", "all", "top", "into", "values", "as", "with",
	"recursive",

	// Set operations
	"union", "intersect", "except", "minus",

	// Joins
	"join", "inner", "outer", "left", "right", "full", "cross", "natural",
	"lateral", "semi", "anti", "using", "on", "straight_join",

	// Expressions
	"case", "when", "then", "else", "end", "and", "or", "not", "null", "is",
	"in", "exists", "between", "like", "ilike", "rlike", "regexp", "escape",
	"cast", "convert", "interval", "true", "false", "unknown", "any", "some",
	"collate", "binary", "div", "mod", "xor", "asc", "desc", "nulls", "first",
	"last",

	// DML
	"insert", "update", "delete", "merge", "replace", "upsert", "set",
	"truncate", "load", "copy", "export", "import", "call", "execute",
	"explain", "describe", "show", "use",

	// DDL
	"create", "alter", "drop", "rename", "table", "view", "materialized",
	"index", "schema", "database", "catalog", "function", "procedure",
	"trigger", "sequence", "column", "constraint", "primary", "foreign",
	"key", "references", "unique", "check", "default", "temporary",
	"temp", "external", "if", "comment", "algorithm", "definer", "invoker",
	"security", "sql", "engine", "properties", "distributed", "buckets",

	// Transactions and sessions
	"begin", "start", "commit", "rollback", "savepoint", "transaction",
	"work", "lock", "unlock", "grant", "revoke", "session", "global",
	"local", "current", "isolation", "level", "read", "write", "only",

	// Pseudo tables and table functions
	"dual", "unnest", "generate_series", "table_function", "files", "each",
	"json_each", "json_table",

	// Current values
	"current_date", "current_time", "current_timestamp", "current_user",
	"current_role", "current_schema", "current_catalog", "localtime",
	"localtimestamp", "session_user", "system_user", "user",

	// Sampling and locking hints
	"tablesample", "sample", "for", "share", "nowait", "skip", "locked",
	"force", "ignore", "partitions", "tablet", "system_time", "of", "at",
}

var reservedSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(reservedWords))
	for _, w := range reservedWords {
		set[strings.ToUpper(w)] = struct{}{}
	}
	return set
}()

// IsReservedWord reports whether word is excluded from extraction.
func IsReservedWord(word string) bool {
	_, ok := reservedSet[strings.ToUpper(word)]
	return ok
}
