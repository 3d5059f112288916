package dbclient

import (
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

// quoteMySQL quotes an identifier with backticks.
func quoteMySQL(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
