package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// File is the on-disk representation of a catalog.
type File struct {
	Version  string    `json:"version" yaml:"version"`
	Sections []Section `json:"sections" yaml:"sections"`
}

// Default returns the catalog embedded in the binary. It is parsed once;
// every caller shares the same immutable value.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = Parse(defaultCatalog, "default.yaml")
	})
	return defaultCat, defaultErr
}

// Load reads and validates a catalog file. JSON is chosen by the .json
// extension, anything else is read as YAML.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data, path)
}

// Parse decodes catalog bytes; name is only used to pick the format.
func Parse(data []byte, name string) (*Catalog, error) {
	var (
		f   File
		err error
	)
	if strings.ToLower(filepath.Ext(name)) == ".json" {
		f, err = parseJSON(data)
	} else {
		f, err = parseYAML(data)
	}
	if err != nil {
		return nil, err
	}
	return New(f.Version, f.Sections)
}

func parseJSON(data []byte) (File, error) {
	var f File
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&f); err != nil {
		return File{}, fmt.Errorf("parse json: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return File{}, fmt.Errorf("parse json: multiple documents are not supported")
		}
		return File{}, fmt.Errorf("parse json: %w", err)
	}
	return f, nil
}

func parseYAML(data []byte) (File, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return File{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return File{}, fmt.Errorf("parse yaml: multiple documents are not supported")
		}
		return File{}, fmt.Errorf("parse yaml: %w", err)
	}
	return f, nil
}

// Marshal renders the catalog back to its file form, used by the catalog
// command to print the effective definition.
func (c *Catalog) Marshal() ([]byte, error) {
	return yaml.Marshal(File{Version: c.version, Sections: c.Sections()})
}
