package watcher

import (
	"path/filepath"
	"strings"
)

// DefaultIgnoreDirs are never indexed or watched
var DefaultIgnoreDirs = []string{".git", "node_modules", "dist", "build", "vendor", ".codegraph"}

// binaryExtensions are skipped during discovery
var binaryExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".bmp": {}, ".ico": {}, ".webp": {}, ".svgz": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".otf": {}, ".eot": {},
	".mp3": {}, ".mp4": {}, ".wav": {}, ".ogg": {}, ".avi": {}, ".mov": {}, ".webm": {},
	".zip": {}, ".tar": {}, ".gz": {}, ".tgz": {}, ".bz2": {}, ".xz": {}, ".7z": {}, ".rar": {},
	".exe": {}, ".dll": {}, ".so": {}, ".dylib": {}, ".a": {}, ".o": {}, ".class": {}, ".jar": {},
	".pdf": {}, ".db": {}, ".sqlite": {}, ".wasm": {}, ".pyc": {}, ".bin": {},
}

// Matcher decides which paths under a root are ignored
type Matcher struct {
	root     string
	dirs     map[string]struct{}
	patterns []string
}

// NewMatcher creates a matcher with the default directories plus glob
// patterns matched against the base name and the root-relative path
func NewMatcher(root string, patterns []string) *Matcher {
	dirs := make(map[string]struct{}, len(DefaultIgnoreDirs))
	for _, d := range DefaultIgnoreDirs {
		dirs[d] = struct{}{}
	}
	return &Matcher{
		root:     root,
		dirs:     dirs,
		patterns: append([]string(nil), patterns...),
	}
}

// Ignored reports whether path, absolute or relative to the root, is
// excluded. Any segment that is an ignored directory or starts with a dot
// excludes the path.
func (m *Matcher) Ignored(path string) bool {
	rel := path
	if filepath.IsAbs(path) && m.root != "" {
		r, err := filepath.Rel(m.root, path)
		if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			return true
		}
		rel = r
	}
	rel = filepath.ToSlash(filepath.Clean(rel))
	if rel == "." {
		return false
	}

	for _, seg := range strings.Split(rel, "/") {
		if _, ok := m.dirs[seg]; ok {
			return true
		}
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}

	base := filepath.Base(rel)
	for _, pattern := range m.patterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Binary reports whether path has a known binary extension
func (m *Matcher) Binary(path string) bool {
	_, ok := binaryExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}
