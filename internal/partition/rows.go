package partition

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/snappy"

	"github.com/snapgov/snapgov/internal/storage"
)

// SeasonWeeks maps a season (named by its starting year) to the set of
// week numbers observed for it.
type SeasonWeeks map[int]map[int]bool

// Add records one observed (season, week) pair.
func (sw SeasonWeeks) Add(season, week int) {
	if sw[season] == nil {
		sw[season] = make(map[int]bool)
	}
	sw[season][week] = true
}

// Seasons returns the observed seasons in ascending order.
func (sw SeasonWeeks) Seasons() []int {
	seasons := make([]int, 0, len(sw))
	for s := range sw {
		seasons = append(seasons, s)
	}
	sort.Ints(seasons)
	return seasons
}

// Weeks returns the observed weeks of one season in ascending order.
func (sw SeasonWeeks) Weeks(season int) []int {
	weeks := make([]int, 0, len(sw[season]))
	for w := range sw[season] {
		weeks = append(weeks, w)
	}
	sort.Ints(weeks)
	return weeks
}

// Merge folds another observation set into this one.
func (sw SeasonWeeks) Merge(other SeasonWeeks) {
	for s, weeks := range other {
		for w := range weeks {
			sw.Add(s, w)
		}
	}
}

// openData opens a data file, transparently decompressing snappy
// framed files (.sz suffix).
func openData(ctx context.Context, store storage.PartitionStore, file storage.FileInfo) (io.Reader, io.Closer, error) {
	rc, err := store.Open(ctx, file.Path)
	if err != nil {
		return nil, nil, err
	}
	if strings.HasSuffix(file.Name, ".sz") {
		return snappy.NewReader(rc), rc, nil
	}
	return rc, rc, nil
}

// dataFormat returns the file's logical format with any .sz suffix
// stripped.
func dataFormat(name string) string {
	name = strings.TrimSuffix(name, ".sz")
	switch {
	case strings.HasSuffix(name, ".csv"):
		return "csv"
	case strings.HasSuffix(name, ".jsonl"):
		return "jsonl"
	default:
		return ""
	}
}

// CountRows counts the data rows of one file. CSV files are counted as
// records minus the header line; JSONL files as non-empty lines.
func CountRows(ctx context.Context, store storage.PartitionStore, file storage.FileInfo) (int64, error) {
	format := dataFormat(file.Name)
	if format == "" {
		return 0, fmt.Errorf("partition: unsupported data file format: %s", file.Name)
	}

	r, closer, err := openData(ctx, store, file)
	if err != nil {
		return 0, fmt.Errorf("partition: failed to open %s: %w", file.Path, err)
	}
	defer closer.Close()

	switch format {
	case "csv":
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.ReuseRecord = true
		var n int64
		for {
			_, err := cr.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return 0, fmt.Errorf("partition: failed to read %s: %w", file.Path, err)
			}
			n++
		}
		if n > 0 {
			n-- // header
		}
		return n, nil
	default:
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
		var n int64
		for sc.Scan() {
			if len(strings.TrimSpace(sc.Text())) > 0 {
				n++
			}
		}
		if err := sc.Err(); err != nil {
			return 0, fmt.Errorf("partition: failed to scan %s: %w", file.Path, err)
		}
		return n, nil
	}
}

// ReadSeasonWeeks extracts the (season, week) pairs present in one CSV
// data file, keyed by header column names.
func ReadSeasonWeeks(ctx context.Context, store storage.PartitionStore, file storage.FileInfo, seasonCol, weekCol string) (SeasonWeeks, error) {
	if dataFormat(file.Name) != "csv" {
		return nil, fmt.Errorf("partition: coverage extraction needs a csv file, got %s", file.Name)
	}

	r, closer, err := openData(ctx, store, file)
	if err != nil {
		return nil, fmt.Errorf("partition: failed to open %s: %w", file.Path, err)
	}
	defer closer.Close()

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("partition: failed to read header of %s: %w", file.Path, err)
	}
	seasonIdx, weekIdx := -1, -1
	for i, col := range header {
		switch col {
		case seasonCol:
			seasonIdx = i
		case weekCol:
			weekIdx = i
		}
	}
	if seasonIdx < 0 {
		return nil, fmt.Errorf("partition: column %q not found in %s", seasonCol, file.Path)
	}
	if weekIdx < 0 {
		return nil, fmt.Errorf("partition: column %q not found in %s", weekCol, file.Path)
	}

	present := make(SeasonWeeks)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("partition: failed to read %s: %w", file.Path, err)
		}
		if seasonIdx >= len(rec) || weekIdx >= len(rec) {
			continue
		}
		season, err := strconv.Atoi(strings.TrimSpace(rec[seasonIdx]))
		if err != nil {
			return nil, fmt.Errorf("partition: bad season value %q in %s", rec[seasonIdx], file.Path)
		}
		week, err := strconv.Atoi(strings.TrimSpace(rec[weekIdx]))
		if err != nil {
			return nil, fmt.Errorf("partition: bad week value %q in %s", rec[weekIdx], file.Path)
		}
		present.Add(season, week)
	}
	return present, nil
}

// ReadColumn extracts the values of one named column from a CSV data
// file, in row order. Empty values are kept.
func ReadColumn(ctx context.Context, store storage.PartitionStore, file storage.FileInfo, col string) ([]string, error) {
	if dataFormat(file.Name) != "csv" {
		return nil, fmt.Errorf("partition: column extraction needs a csv file, got %s", file.Name)
	}

	r, closer, err := openData(ctx, store, file)
	if err != nil {
		return nil, fmt.Errorf("partition: failed to open %s: %w", file.Path, err)
	}
	defer closer.Close()

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("partition: failed to read header of %s: %w", file.Path, err)
	}
	idx := -1
	for i, c := range header {
		if c == col {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("partition: column %q not found in %s", col, file.Path)
	}

	var values []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("partition: failed to read %s: %w", file.Path, err)
		}
		if idx < len(rec) {
			values = append(values, rec[idx])
		}
	}
	return values, nil
}
