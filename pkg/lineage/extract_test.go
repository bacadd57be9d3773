package lineage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDependencies(t *testing.T) {
	tests := []struct {
		name       string
		definition string
		expected   []string
	}{
		{
			name:       "from and join",
			definition: "CREATE VIEW v1 AS SELECT * FROM t1 JOIN t2 ON t1.id = t2.id",
			expected:   []string{"t1", "t2"},
		},
		{
			name:       "single source",
			definition: "CREATE VIEW v2 AS SELECT * FROM v1",
			expected:   []string{"v1"},
		},
		{
			name:       "backticked and schema qualified",
			definition: "CREATE VIEW `v` AS select `t`.`id` from `shop`.`orders` `t` left join `shop`.`customers` AS `c` on `c`.`id` = `t`.`cid`",
			expected:   []string{"customers", "orders"},
		},
		{
			name:       "bare schema qualified with alias",
			definition: "SELECT o.id FROM shop.orders AS o INNER JOIN shop.items i ON i.oid = o.id",
			expected:   []string{"items", "orders"},
		},
		{
			name:       "three part name",
			definition: "SELECT * FROM default_catalog.shop.orders",
			expected:   []string{"orders"},
		},
		{
			name:       "join variants",
			definition: "SELECT * FROM a LEFT OUTER JOIN b ON 1=1 RIGHT JOIN c ON 1=1 CROSS JOIN d FULL JOIN e ON 1=1",
			expected:   []string{"a", "b", "c", "d", "e"},
		},
		{
			name:       "case insensitive keywords",
			definition: "select * From t1 jOiN t2 on t1.id = t2.id",
			expected:   []string{"t1", "t2"},
		},
		{
			name: "comments stripped",
			definition: `SELECT * FROM real_table -- FROM commented_line
				/* JOIN commented_block
				   FROM another */
				JOIN other_table ON 1=1`,
			expected: []string{"other_table", "real_table"},
		},
		{
			name:       "whitespace collapsed",
			definition: "SELECT *\n\tFROM\n\n   spaced_table\n",
			expected:   []string{"spaced_table"},
		},
		{
			name:       "subquery source",
			definition: "SELECT * FROM (SELECT id FROM inner_table) sub JOIN outer_table ON 1=1",
			expected:   []string{"inner_table", "outer_table"},
		},
		{
			name:       "table function skipped",
			definition: "SELECT * FROM unnest(arr) JOIN read_parquet('x') ON 1=1 JOIN t ON 1=1",
			expected:   []string{"t"},
		},
		{
			name:       "duplicates collapsed",
			definition: "SELECT * FROM t1 UNION ALL SELECT * FROM t1",
			expected:   []string{"t1"},
		},
		{
			name:       "no sources",
			definition: "SELECT 1",
			expected:   []string{},
		},
		{
			name:       "end of text without alias",
			definition: "SELECT * FROM t_last",
			expected:   []string{"t_last"},
		},
		{
			name:       "unicode names",
			definition: "SELECT * FROM 订单表 JOIN `用户` ON 1=1",
			expected:   []string{"用户", "订单表"},
		},
		{
			name:       "double quoted identifiers",
			definition: `SELECT * FROM "analytics"."sales" s`,
			expected:   []string{"sales"},
		},
		{
			name:       "dual pseudo table",
			definition: "SELECT 1 FROM DUAL",
			expected:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractDependencies(tt.definition))
		})
	}
}

func TestExtractDependencies_ReservedWordsNeverExtracted(t *testing.T) {
	for _, word := range []string{"WHERE", "ON", "SELECT", "GROUP", "ORDER", "LIMIT", "LATERAL", "where", "Select"} {
		t.Run(word, func(t *testing.T) {
			got := ExtractDependencies("SELECT * FROM " + word + " x JOIN " + word + " y")
			assert.Empty(t, got)
		})
	}
}

func TestIsReservedWord(t *testing.T) {
	assert.True(t, IsReservedWord("select"))
	assert.True(t, IsReservedWord("JOIN"))
	assert.True(t, IsReservedWord("Current_Date"))
	assert.False(t, IsReservedWord("orders"))
	assert.False(t, IsReservedWord(""))
}

func TestStripComments(t *testing.T) {
	got := StripComments("a /* b */ c -- d\ne")
	assert.Equal(t, "a   c \ne", got)
}
