package scanner

import (
	"path/filepath"
	"strings"
)

// Kind classifies a discovered file by what dfcov does with it.
type Kind string

const (
	KindUnknown Kind = ""
	KindYAML    Kind = "yaml"  // Class document
	KindJSON    Kind = "json"  // Class document
	KindTrace   Kind = "trace" // JSON lines occurrence trace
	KindJava    Kind = "java"  // Source file for declared spans
)

var kindByExt = map[string]Kind{
	".yaml":  KindYAML,
	".yml":   KindYAML,
	".json":  KindJSON,
	".jsonl": KindTrace,
	".java":  KindJava,
}

// DetectKind returns the kind of a file from its extension.
func DetectKind(path string) Kind {
	return kindByExt[strings.ToLower(filepath.Ext(path))]
}

// IsClassDocument reports whether files of this kind hold a class document.
func (k Kind) IsClassDocument() bool {
	return k == KindYAML || k == KindJSON
}
