package dbclient

import (
	"fmt"
	"strings"

	_ "github.com/lib/pq"
)

// postgresPlaceholders returns "$1, $2, ..." for n columns.
func postgresPlaceholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(ph, ", ")
}
