// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package xmlcatalog opens the catalog XML entry selected by
// internal/archive and hands a plain io.Reader to internal/catalog,
// keeping filesystem concerns out of the parser.
package xmlcatalog

import (
	"context"
	"fmt"
	"os"

	"github.com/plexodb/plexodb/internal/archive"
	"github.com/plexodb/plexodb/internal/catalog"
)

// Load opens bundle.XMLPath and parses it into a Catalog.
func Load(ctx context.Context, bundle *archive.Bundle) (*catalog.Catalog, error) {
	f, err := os.Open(bundle.XMLPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog xml %s: %w", bundle.XMLPath, err)
	}
	defer f.Close()

	cat, err := catalog.Load(ctx, f, bundle.Meta)
	if err != nil {
		return nil, fmt.Errorf("load catalog from %s: %w", bundle.XMLPath, err)
	}
	return cat, nil
}
