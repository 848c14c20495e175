// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sqlident quotes SQL identifiers and string literals the way the
// Finalizer's destination-path quoting does: double any embedded quote
// character rather than escaping it.
package sqlident

import "strings"

// Quote wraps name in double quotes, doubling any embedded double quote so
// it survives as a single identifier.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral wraps s in single quotes, doubling any embedded single quote.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
