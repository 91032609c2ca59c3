// Package scanner walks a directory tree for the inputs dfcov consumes: class
// documents, occurrence traces and Java sources. It honors a .dfcovignore file
// with gitignore-style patterns plus exclude globs from the configuration.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// IgnoreFileName is the per-root ignore file.
const IgnoreFileName = ".dfcovignore"

// FileInfo describes a discovered file.
type FileInfo struct {
	Path     string // Slash-separated path relative to the root
	FullPath string
	Kind     Kind
	Size     int64
}

// Options configures the scanner behavior.
type Options struct {
	Kinds           []Kind   // Kinds to report; all known kinds when empty
	SkipHidden      bool     // Skip files and directories starting with '.'
	DefaultExcludes []string // Directory names never entered
	IgnoreFileName  string
	Exclude         []string // Extra gitignore-style patterns
}

// DefaultOptions returns options that find class documents.
func DefaultOptions() Options {
	return Options{
		Kinds:          []Kind{KindYAML, KindJSON},
		SkipHidden:     true,
		IgnoreFileName: IgnoreFileName,
		DefaultExcludes: []string{
			".git",
			".gradle",
			".idea",
			"node_modules",
			"vendor",
		},
	}
}

// SourceOptions returns options that find Java sources.
func SourceOptions() Options {
	opts := DefaultOptions()
	opts.Kinds = []Kind{KindJava}
	opts.DefaultExcludes = append(opts.DefaultExcludes, "build", "target", "out")
	return opts
}

// Scanner walks directory trees.
type Scanner struct {
	opts Options
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	return &Scanner{opts: opts}
}

// Scan returns the matching files below root sorted by relative path.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scanning %s: not a directory", root)
	}

	ignore := NewIgnoreList(s.opts.Exclude...)
	if s.opts.IgnoreFileName != "" {
		fromFile, err := LoadIgnoreFile(filepath.Join(absRoot, s.opts.IgnoreFileName))
		if err != nil {
			return nil, fmt.Errorf("loading ignore patterns: %w", err)
		}
		ignore = append(ignore, fromFile...)
	}

	var files []FileInfo
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped
			return nil
		}
		if path == absRoot {
			return nil
		}

		if s.opts.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if s.isDefaultExcluded(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		kind := DetectKind(path)
		if !s.wants(kind) {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)
		if ignore.Ignored(relPath) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, FileInfo{
			Path:     relPath,
			FullPath: path,
			Kind:     kind,
			Size:     fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (s *Scanner) wants(kind Kind) bool {
	if kind == KindUnknown {
		return false
	}
	if len(s.opts.Kinds) == 0 {
		return true
	}
	for _, k := range s.opts.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// Scan scans root for class documents with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}
