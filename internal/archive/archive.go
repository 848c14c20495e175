// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package archive enumerates a PLEXOS solution bundle - a ZIP file or a
// bare directory - selects the catalog XML entry, and extracts the binary
// period-data files into a scratch directory. It never touches the XML or
// BIN contents itself; that is internal/xmlcatalog and internal/binreader's
// job.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/plexodb/plexodb/internal/catalog"
	"github.com/plexodb/plexodb/internal/logging"
)

var binFilePattern = regexp.MustCompile(`^t_data_(\d+)\.BIN$`)

// Bundle is a selected and extracted solution bundle, ready to hand to
// catalog.Load and tswriter.OpenBinFileSet.
type Bundle struct {
	// XMLPath is the selected catalog XML entry, always a plain file on
	// disk (extracted to ScratchDir when the source was a ZIP entry).
	XMLPath string

	// BinPaths maps period_type_id to the extracted BIN file path.
	BinPaths map[int64]string

	// ScratchDir is the temp directory extracted files live under. The
	// caller is responsible for removing it once the run completes.
	ScratchDir string

	// Meta carries the fields of catalog.RunMetadata this package can
	// fill in without parsing the XML: source file path, model name (the
	// archive stem), and the optional sibling files.
	Meta catalog.RunMetadata
}

// Open selects and extracts a solution bundle rooted at path, which may be
// a ZIP file or a directory already containing the extracted entries.
func Open(ctx context.Context, path string) (*Bundle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat input %s: %w", path, err)
	}
	if info.IsDir() {
		return openDir(ctx, path)
	}
	return openZip(ctx, path)
}

func openDir(ctx context.Context, dir string) (*Bundle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}

	stem := strings.TrimSuffix(filepath.Base(dir), filepath.Ext(dir))
	xmlName, err := selectXMLEntry(ctx, names, stem, stem)
	if err != nil {
		return nil, err
	}

	binPaths := map[int64]string{}
	for _, name := range names {
		if m := binFilePattern.FindStringSubmatch(name); m != nil {
			id, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse period_type_id from %s: %w", name, err)
			}
			binPaths[id] = filepath.Join(dir, name)
		}
	}

	meta := catalog.RunMetadata{
		SourceFile: dir,
		ModelName:  stem,
		CreatedAt:  time.Now().UTC(),
	}
	readSiblings(dir, names, stem, &meta)

	return &Bundle{
		XMLPath:  filepath.Join(dir, xmlName),
		BinPaths: binPaths,
		Meta:     meta,
	}, nil
}

func openZip(ctx context.Context, path string) (*Bundle, error) {
	var zr *zip.ReadCloser
	openErr := retry(ctx, func() error {
		r, err := zip.OpenReader(path)
		if err != nil {
			return err
		}
		zr = r
		return nil
	})
	if openErr != nil {
		return nil, fmt.Errorf("open zip %s: %w", path, openErr)
	}
	defer zr.Close()

	scratchDir, err := os.MkdirTemp("", "plexodb-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}

	names := make([]string, 0, len(zr.File))
	byName := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
		byName[f.Name] = f
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	xmlName, err := selectXMLEntry(ctx, names, stem, stem)
	if err != nil {
		os.RemoveAll(scratchDir)
		return nil, err
	}

	xmlPath, err := extractEntry(ctx, byName[xmlName], scratchDir, filepath.Base(xmlName))
	if err != nil {
		os.RemoveAll(scratchDir)
		return nil, err
	}

	binPaths := map[int64]string{}
	for _, name := range names {
		m := binFilePattern.FindStringSubmatch(filepath.Base(name))
		if m == nil {
			continue
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			os.RemoveAll(scratchDir)
			return nil, fmt.Errorf("parse period_type_id from %s: %w", name, err)
		}
		p, err := extractEntry(ctx, byName[name], scratchDir, fmt.Sprintf("t_data_%d.BIN", id))
		if err != nil {
			os.RemoveAll(scratchDir)
			return nil, err
		}
		binPaths[id] = p
	}

	meta := catalog.RunMetadata{
		SourceFile: path,
		ModelName:  stem,
		CreatedAt:  time.Now().UTC(),
	}
	readSiblingZipEntries(byName, names, stem, &meta)

	return &Bundle{
		XMLPath:    xmlPath,
		BinPaths:   binPaths,
		ScratchDir: scratchDir,
		Meta:       meta,
	}, nil
}

// selectXMLEntry implements the selection policy: stem match, else
// lowercased model-name substring match, else the first .xml entry.
// The latter two fall back paths log a warning since they are ambiguous.
func selectXMLEntry(ctx context.Context, names []string, archiveStem, modelName string) (string, error) {
	var xmlNames []string
	for _, name := range names {
		if strings.EqualFold(filepath.Ext(name), ".xml") {
			xmlNames = append(xmlNames, name)
		}
	}
	if len(xmlNames) == 0 {
		return "", fmt.Errorf("no .xml entry found in bundle")
	}
	sort.Strings(xmlNames)

	for _, name := range xmlNames {
		if strings.EqualFold(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)), archiveStem) {
			return name, nil
		}
	}

	lowerModel := strings.ToLower(modelName)
	for _, name := range xmlNames {
		if strings.Contains(strings.ToLower(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))), lowerModel) {
			logging.Ctx(ctx).Warn().Str("entry", name).Msg("xml selection fell back to model-name substring match")
			return name, nil
		}
	}

	logging.Ctx(ctx).Warn().Str("entry", xmlNames[0]).Msg("xml selection fell back to first .xml entry")
	return xmlNames[0], nil
}

func extractEntry(ctx context.Context, f *zip.File, scratchDir, destName string) (string, error) {
	dest := filepath.Join(scratchDir, destName)
	err := retry(ctx, func() error {
		rc, err := f.Open()
		if err != nil {
			return err
		}
		defer rc.Close()

		out, err := os.Create(dest)
		if err != nil {
			return err
		}
		defer out.Close()

		_, err = io.Copy(out, rc)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return dest, nil
}

// retry wraps a transient archive-extraction I/O operation with bounded
// exponential backoff; a successful op short-circuits immediately.
func retry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

func readSiblings(dir string, names []string, modelName string, meta *catalog.RunMetadata) {
	logName := fmt.Sprintf("Model ( %s ) Log.txt", modelName)
	for _, name := range names {
		if name == logName {
			if b, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
				s := string(b)
				meta.SimulationLog = &s
			}
		}
		if name == "runstats.json" {
			if b, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
				s := string(b)
				meta.RunStats = &s
			}
		}
	}
}

func readSiblingZipEntries(byName map[string]*zip.File, names []string, modelName string, meta *catalog.RunMetadata) {
	logName := fmt.Sprintf("Model ( %s ) Log.txt", modelName)
	for _, name := range names {
		base := filepath.Base(name)
		if base == logName {
			if s, err := readZipEntryString(byName[name]); err == nil {
				meta.SimulationLog = &s
			}
		}
		if base == "runstats.json" {
			if s, err := readZipEntryString(byName[name]); err == nil {
				meta.RunStats = &s
			}
		}
	}
}

func readZipEntryString(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Close removes the scratch directory created for a ZIP-sourced bundle.
// It is a no-op for directory-sourced bundles.
func (b *Bundle) Close() error {
	if b.ScratchDir == "" {
		return nil
	}
	return os.RemoveAll(b.ScratchDir)
}
