package eggget

import (
	"strings"

	eggerrors "github.com/flaneur2020/egg-get/eggget/errors"
)

// EntryIndex is a snapshot of an archive's entries, taken once to resolve
// path patterns for the CLI. The Archive itself keeps no index.
type EntryIndex struct {
	Archive string
	Entries []EntryInfo
	// name -> position in Entries of its first occurrence
	byName map[string]int
}

// LoadIndex walks a once and indexes every entry.
func LoadIndex(a *Archive) (*EntryIndex, error) {
	infos, err := a.EntryInfos()
	if err != nil {
		return nil, err
	}
	return NewEntryIndex(a.Path(), infos), nil
}

// NewEntryIndex indexes infos. Later duplicates of a name are kept in Entries
// but never returned by lookups, matching the first-match rule of ReadEntry.
func NewEntryIndex(archive string, infos []EntryInfo) *EntryIndex {
	idx := &EntryIndex{
		Archive: archive,
		Entries: infos,
		byName:  make(map[string]int, len(infos)),
	}
	for i, info := range infos {
		if _, ok := idx.byName[info.Name]; !ok {
			idx.byName[info.Name] = i
		}
	}
	return idx
}

// AllEntries returns every entry name in archive order, duplicates included.
func (idx *EntryIndex) AllEntries() []string {
	names := make([]string, 0, len(idx.Entries))
	for _, info := range idx.Entries {
		names = append(names, info.Name)
	}
	return names
}

// FindEntry returns the first entry called name.
func (idx *EntryIndex) FindEntry(name string) (*EntryInfo, error) {
	i, ok := idx.byName[name]
	if !ok {
		return nil, eggerrors.ErrNotFound.WithDetail("name", name).WithDetail("archive", idx.Archive)
	}
	return &idx.Entries[i], nil
}

// FilterEntries filters entries by path pattern. pattern can be:
// - A specific entry path (e.g., "docs/readme.txt")
// - A directory path (e.g., "docs/" or "docs") - returns all entries under that directory
// - "." or "/" or "" - returns all entries
// Backslash separators in entry names are treated like slashes.
func (idx *EntryIndex) FilterEntries(pattern string) []EntryInfo {
	if pattern == "." || pattern == "/" {
		pattern = ""
	}

	matcher := newPathMatcher(pattern)
	var results []EntryInfo
	for i, info := range idx.Entries {
		if idx.byName[info.Name] != i {
			continue
		}
		if matcher.matches(info.Name) {
			results = append(results, info)
		}
	}
	return results
}

// pathMatcher encapsulates path pattern matching logic for FilterEntries
type pathMatcher struct {
	matchAll  bool
	pattern   string
	dirPrefix bool
}

func newPathMatcher(pattern string) pathMatcher {
	if pattern == "" {
		return pathMatcher{matchAll: true}
	}

	pattern = normalizeEntryPath(pattern)
	dirPrefix := strings.HasSuffix(pattern, "/")
	if !strings.HasPrefix(pattern, "/") {
		pattern = "/" + pattern
	}

	return pathMatcher{
		pattern:   pattern,
		dirPrefix: dirPrefix,
	}
}

func (m pathMatcher) matches(path string) bool {
	if m.matchAll {
		return true
	}

	path = normalizeEntryPath(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	if m.dirPrefix {
		return strings.HasPrefix(path, m.pattern)
	}

	return path == m.pattern || strings.HasPrefix(path, m.pattern+"/")
}

func normalizeEntryPath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
