package hostlist

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/darkrenaissance/darkfi-sub003/addr"
)

// tsv columns per spec §6: tier, scheme://host:port, last_seen (unix
// seconds), last_error. pinned rides alongside as a trailing column.
const tsvColumns = 5

// Save writes the store's contents to path as TSV, via a temp file plus
// atomic rename so a crash mid-write never corrupts the existing file
// (spec §6).
func (s *Store) Save(path string) error {
	s.mu.Lock()
	lines := make([]string, 0, len(s.entries))
	for k, e := range s.entries {
		tier := s.tierOf[k]
		lines = append(lines, strings.Join([]string{
			tier.String(),
			e.addr.String(),
			strconv.FormatInt(e.lastSeen.Unix(), 10),
			e.lastError,
			strconv.FormatBool(e.pinned),
		}, "\t"))
	}
	s.mu.Unlock()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".hostlist-*.tmp")
	if err != nil {
		return fmt.Errorf("hostlist: save: %w", err)
	}
	tmpPath := tmp.Name()

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("hostlist: save: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("hostlist: save: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("hostlist: save: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("hostlist: save: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("hostlist: save: rename: %w", err)
	}
	return nil
}

// Load replaces the store's contents with the TSV file at path.
// A missing file is not an error — it just means an empty store
// (first run).
func (s *Store) Load(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("hostlist: load: %w", err)
	}
	defer f.Close()

	tierOf := make(map[string]Tier)
	entries := make(map[string]*entry)

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != tsvColumns {
			hlog.Warnf("hostlist: skipping malformed line %d in %s", lineNo, path)
			continue
		}

		tier, err := ParseTier(fields[0])
		if err != nil {
			hlog.Warnf("hostlist: skipping malformed line %d in %s: %v", lineNo, path, err)
			continue
		}
		a, err := addr.Parse(fields[1])
		if err != nil {
			hlog.Warnf("hostlist: skipping malformed line %d in %s: %v", lineNo, path, err)
			continue
		}
		lastSeenSec, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			hlog.Warnf("hostlist: skipping malformed line %d in %s: %v", lineNo, path, err)
			continue
		}
		lastError := fields[3]
		pinned, err := strconv.ParseBool(fields[4])
		if err != nil {
			hlog.Warnf("hostlist: skipping malformed line %d in %s: %v", lineNo, path, err)
			continue
		}

		k := key(a)
		tierOf[k] = tier
		entries[k] = &entry{
			addr:      a,
			lastSeen:  time.Unix(lastSeenSec, 0),
			lastError: lastError,
			pinned:    pinned,
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("hostlist: load: %w", err)
	}

	s.mu.Lock()
	s.tierOf = tierOf
	s.entries = entries
	s.transient = make(map[string]State)
	s.mu.Unlock()
	return nil
}
