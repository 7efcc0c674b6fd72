// Package prompt builds the system prompt from the capability and purpose
// descriptor documents.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/localgpt/localgpt/pkg/types"
)

// Descriptors holds the two JSON documents the system prompt is built from.
type Descriptors struct {
	Capabilities json.RawMessage
	Purpose      json.RawMessage
}

// Load reads the descriptor files named in cfg. Relative paths resolve
// against baseDir. Both files must exist and hold valid JSON, or YAML when
// the name ends in .yaml or .yml.
func Load(baseDir string, cfg *types.DescriptorConfig) (*Descriptors, error) {
	capabilities, err := readJSON(resolve(baseDir, cfg.Capabilities))
	if err != nil {
		return nil, fmt.Errorf("load capabilities: %w", err)
	}
	purpose, err := readJSON(resolve(baseDir, cfg.Purpose))
	if err != nil {
		return nil, fmt.Errorf("load purpose: %w", err)
	}
	return &Descriptors{Capabilities: capabilities, Purpose: purpose}, nil
}

func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

func readJSON(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		doc, err := yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return doc, nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s: invalid JSON", path)
	}
	return json.RawMessage(data), nil
}

// SystemPrompt renders the prompt. Documents are re-indented with two spaces
// and keep their key order.
func (d *Descriptors) SystemPrompt() string {
	var b bytes.Buffer
	b.WriteString("Capabilities:\n")
	writeIndented(&b, d.Capabilities)
	b.WriteString("\n\nPurpose and Tone:\n")
	writeIndented(&b, d.Purpose)
	b.WriteString("\n\nPlease adhere to the above capabilities and purpose in all interactions.")
	return b.String()
}

func writeIndented(b *bytes.Buffer, doc json.RawMessage) {
	doc = bytes.TrimSpace(doc)
	if len(doc) == 0 {
		b.WriteString("null")
		return
	}
	if err := json.Indent(b, doc, "", "  "); err != nil {
		b.Write(doc)
	}
}
