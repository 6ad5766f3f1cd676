package fs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
)

// IgnoreFile holds extra ignore patterns, one per line, at the top of the
// presets directory.
const IgnoreFile = ".cfgpushignore"

// defaultIgnorePatterns are always applied before the ignore file.
var defaultIgnorePatterns = []string{IgnoreFile, ".DS_Store", "*~"}

type ignoreRule struct {
	glob     string
	anchored bool // glob contains '/', match the whole relative path
	dirOnly  bool // trailing '/', match directories only
	negate   bool // leading '!', re-include
}

// IgnoreMatcher hides preset entries from listings. Rules follow a small
// subset of gitignore:
//
//	*.bak       any entry whose name matches
//	old/*.json  a path relative to the preset (or presets) directory
//	drafts/     directories only
//	!keep.bak   re-include; the last matching rule wins
type IgnoreMatcher struct {
	rules []ignoreRule
}

// NewIgnoreMatcher parses rules. Blank lines, comments and malformed globs
// are dropped.
func NewIgnoreMatcher(lines []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var r ignoreRule
		if strings.HasPrefix(line, "!") {
			r.negate = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			r.dirOnly = true
			line = strings.TrimRight(line, "/")
		}
		line = strings.TrimPrefix(line, "/")
		if line == "" {
			continue
		}
		if _, err := path.Match(line, ""); err != nil {
			continue
		}
		r.glob = line
		r.anchored = strings.Contains(line, "/")
		m.rules = append(m.rules, r)
	}
	return m
}

// Match reports whether rel (slash-separated) is ignored.
func (m *IgnoreMatcher) Match(rel string, isDir bool) bool {
	rel = strings.Trim(normalizeSlashes(rel), "/")
	name := path.Base(rel)

	ignored := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		subject := name
		if r.anchored {
			subject = rel
		}
		if ok, _ := path.Match(r.glob, subject); ok {
			ignored = !r.negate
		}
	}
	return ignored
}

func normalizeSlashes(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// ParseIgnoreFile reads the ignore file name from fsys. A missing file has
// no rules.
func ParseIgnoreFile(fsys billy.Filesystem, name string) ([]string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
