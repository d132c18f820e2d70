package weft

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eleven-am/weft/internal/domain"
	"github.com/eleven-am/weft/internal/xjson"
)

// LoadDocument reads a workflow document from a YAML or JSON file, picking
// the codec from the file extension.
func LoadDocument(path string) (*WorkflowDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseDocumentJSON(data)
	default:
		return ParseDocument(data)
	}
}

// ParseDocument decodes a YAML workflow document.
func ParseDocument(data []byte) (*WorkflowDocument, error) {
	var doc domain.WorkflowDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, domain.NewValidationError("document", err.Error())
	}
	return &doc, nil
}

// ParseDocumentJSON decodes a JSON workflow document.
func ParseDocumentJSON(data []byte) (*WorkflowDocument, error) {
	var doc domain.WorkflowDocument
	if err := xjson.Unmarshal(data, &doc); err != nil {
		return nil, domain.NewValidationError("document", err.Error())
	}
	return &doc, nil
}
