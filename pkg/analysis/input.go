package analysis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/l3aro/dfcov/pkg/types"
)

// LoadClassInput reads one class document. Files ending in .json are decoded
// as JSON; everything else as YAML.
func LoadClassInput(path string) (*types.ClassInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading class document: %w", err)
	}
	return ParseClassInput(data, strings.EqualFold(filepath.Ext(path), ".json"))
}

// ParseClassInput decodes a class document from memory.
func ParseClassInput(data []byte, isJSON bool) (*types.ClassInput, error) {
	var in types.ClassInput
	if isJSON {
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, fmt.Errorf("parsing class document: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &in); err != nil {
			return nil, fmt.Errorf("parsing class document: %w", err)
		}
	}
	if in.Name == "" {
		return nil, fmt.Errorf("class document has no name")
	}
	return &in, nil
}
