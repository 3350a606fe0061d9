package schema

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// CreateTableSQL builds the statements that create def: the table with its
// primary key, secondary indexes, then table and column comments.
func CreateTableSQL(def *Definition) ([]string, error) {
	table := pgx.Identifier{def.Schema, def.Table}.Sanitize()

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", table)
	for i, col := range def.Columns {
		if err := checkType(col.Type); err != nil {
			return nil, fmt.Errorf("%s.%s.%s: %w", def.Schema, def.Table, col.Name, err)
		}
		fmt.Fprintf(&b, "    %s %s", pgx.Identifier{col.Name}.Sanitize(), col.Type)
		if !col.Nullable {
			b.WriteString(" NOT NULL")
		}
		if i < len(def.Columns)-1 || hasPrimary(def) {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}

	var stmts []string
	for _, ix := range def.Indexes {
		if ix.Name == PrimaryIndex {
			fmt.Fprintf(&b, "    PRIMARY KEY (%s)\n", quoteList(ix.Columns))
			continue
		}
		unique := ""
		if ix.Unique {
			unique = "UNIQUE "
		}
		using := ""
		if ix.Type != "" {
			if err := checkType(ix.Type); err != nil {
				return nil, fmt.Errorf("index %s: %w", ix.Name, err)
			}
			using = " USING " + strings.ToLower(ix.Type)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %sINDEX %s ON %s%s (%s)",
			unique, pgx.Identifier{ix.Name}.Sanitize(), table, using, quoteList(ix.Columns)))
	}
	b.WriteString(")")
	stmts = append([]string{b.String()}, stmts...)

	if def.Comment.Valid {
		stmts = append(stmts, fmt.Sprintf("COMMENT ON TABLE %s IS %s", table, quoteLiteral(def.Comment.String)))
	}
	for _, col := range def.Columns {
		if col.Comment.Valid {
			stmts = append(stmts, fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s",
				table, pgx.Identifier{col.Name}.Sanitize(), quoteLiteral(col.Comment.String)))
		}
	}
	return stmts, nil
}

func hasPrimary(def *Definition) bool {
	for _, ix := range def.Indexes {
		if ix.Name == PrimaryIndex {
			return true
		}
	}
	return false
}

func quoteList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// checkType rejects type strings that could end the statement early.
func checkType(t string) error {
	if strings.TrimSpace(t) == "" {
		return fmt.Errorf("empty type")
	}
	if strings.ContainsAny(t, ";'\"\n") || strings.Contains(t, "--") {
		return fmt.Errorf("invalid type %q", t)
	}
	return nil
}
