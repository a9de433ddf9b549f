// Package layout reads and writes saved networks.
//
// A layout document lists named recipes, the nodes that use them and the
// connections between nodes. It is YAML on disk; JSON documents decode too.
package layout

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/golang/snappy"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/procline/pkg/recipe"
	"github.com/dd0wney/procline/pkg/validation"
)

// ErrInvalidLayout is returned for documents that do not describe a network.
var ErrInvalidLayout = errors.New("invalid layout")

// Node kinds as written in documents.
const (
	KindStep   = "step"
	KindBuffer = "buffer"
)

// Document is the saved form of a network.
type Document struct {
	Recipes     []RecipeSpec     `yaml:"recipes" json:"recipes" validate:"unique=Name,dive"`
	Nodes       []NodeSpec       `yaml:"nodes" json:"nodes" validate:"unique=Name,dive"`
	Connections []ConnectionSpec `yaml:"connections,omitempty" json:"connections,omitempty" validate:"dive"`
}

// RecipeSpec is a named recipe.
type RecipeSpec struct {
	Name     string                  `yaml:"name" json:"name" validate:"required,name"`
	Consume  map[recipe.Item]float64 `yaml:"consume,omitempty" json:"consume,omitempty" validate:"dive,gt=0"`
	Produce  map[recipe.Item]float64 `yaml:"produce,omitempty" json:"produce,omitempty" validate:"dive,gt=0"`
	Duration float64                 `yaml:"duration" json:"duration" validate:"gt=0"`
	Power    float64                 `yaml:"power,omitempty" json:"power,omitempty" validate:"gte=0"`
}

// NodeSpec is one step or buffer.
type NodeSpec struct {
	Name    string                  `yaml:"name" json:"name" validate:"required,name"`
	Kind    string                  `yaml:"kind" json:"kind" validate:"required,oneof=step buffer"`
	Machine string                  `yaml:"machine,omitempty" json:"machine,omitempty"`
	Recipe  string                  `yaml:"recipe,omitempty" json:"recipe,omitempty" validate:"required_if=Kind step"`
	Rate    float64                 `yaml:"rate,omitempty" json:"rate,omitempty" validate:"gte=0"`
	Flow    map[recipe.Item]float64 `yaml:"flow,omitempty" json:"flow,omitempty"`
}

// ConnectionSpec moves Item from the node named From to the node named To.
type ConnectionSpec struct {
	From string      `yaml:"from" json:"from" validate:"required"`
	To   string      `yaml:"to" json:"to" validate:"required,nefield=From"`
	Item recipe.Item `yaml:"item" json:"item" validate:"required"`
}

// Validate checks the document structure. Cross references are resolved by
// Reconstruct.
func (d *Document) Validate() error {
	if err := validation.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	return nil
}

// Decode reads a YAML or JSON document and validates it.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Encode writes doc as YAML.
func Encode(w io.Writer, doc *Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	return enc.Close()
}

// EncodeJSON writes doc as indented JSON.
func EncodeJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	return nil
}

// CompressedSuffix marks layout files stored as snappy-compressed blocks.
const CompressedSuffix = ".sz"

// Load reads a layout file. Files ending in CompressedSuffix are decompressed
// first.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	if strings.HasSuffix(path, CompressedSuffix) {
		if data, err = snappy.Decode(nil, data); err != nil {
			return nil, fmt.Errorf("%w: decompress %s: %v", ErrInvalidLayout, path, err)
		}
	}
	return Decode(bytes.NewReader(data))
}

// Save writes a layout file as YAML, compressed when path ends in
// CompressedSuffix.
func Save(path string, doc *Document) error {
	var buf bytes.Buffer
	if err := Encode(&buf, doc); err != nil {
		return err
	}
	data := buf.Bytes()
	if strings.HasSuffix(path, CompressedSuffix) {
		data = snappy.Encode(nil, data)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write layout: %w", err)
	}
	return nil
}
