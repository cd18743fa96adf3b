package serialization

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidDocument indicates a payload that decodes to no usable node.
var ErrInvalidDocument = errors.New("serialization: invalid document")

// Codec encodes and decodes Data trees.
type Codec interface {
	Encode(d *Data) ([]byte, error)
	Decode(b []byte) (*Data, error)
	// Extension is the file extension without a dot.
	Extension() string
}

var (
	// JSON is the codec used for project documents and templates.
	JSON Codec = jsonCodec{}

	// YAML is the human-readable codec used for debug mirrors.
	YAML Codec = yamlCodec{}
)

// ForExtension returns the codec registered for a file extension. The
// extension may carry a leading dot. Project files (".helio") use JSON.
func ForExtension(ext string) (Codec, bool) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "helio", "json":
		return JSON, true
	case "yaml", "yml":
		return YAML, true
	default:
		return nil, false
	}
}

type jsonCodec struct{}

func (jsonCodec) Extension() string { return "json" }

func (jsonCodec) Encode(d *Data) ([]byte, error) {
	if !d.IsValid() {
		return nil, ErrInvalidDocument
	}
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return b, nil
}

func (jsonCodec) Decode(b []byte) (*Data, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var d Data
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if !d.IsValid() {
		return nil, ErrInvalidDocument
	}
	return &d, nil
}

type yamlCodec struct{}

func (yamlCodec) Extension() string { return "yaml" }

func (yamlCodec) Encode(d *Data) ([]byte, error) {
	if !d.IsValid() {
		return nil, ErrInvalidDocument
	}
	b, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return b, nil
}

func (yamlCodec) Decode(b []byte) (*Data, error) {
	var d Data
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if !d.IsValid() {
		return nil, ErrInvalidDocument
	}
	return &d, nil
}
