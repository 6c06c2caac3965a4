package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ramoncreager/matrix/matrixerrors"
)

// Document is a typed view over the top-level configuration keys the
// loader needs to validate. It is not what gets handed to the Keymaster
// tree — server.Server decodes the raw bytes itself, so the tree holds the
// document's full shape, not just what Document declares.
type Document struct {
	Keymaster struct {
		URLS struct {
			Initial []string `yaml:"Initial"`
		} `yaml:"URLS"`
		CloneInterval int `yaml:"clone_interval"`
	} `yaml:"Keymaster"`
	Components  map[string]any   `yaml:"components"`
	Connections map[string][]any `yaml:"connections"`
}

// Loader reads and validates a Matrix configuration document.
type Loader struct{}

// NewLoader creates a Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadFile reads the document at path ("-" for stdin), validates it, and
// returns both the raw bytes (for server.Config.ConfigYAML) and the
// decoded Document.
func (l *Loader) LoadFile(path string) ([]byte, Document, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, Document{}, matrixerrors.WrapFatal(err, "config", "LoadFile", "open "+path)
		}
		defer f.Close()
		r = f
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, Document{}, matrixerrors.WrapFatal(err, "config", "LoadFile", "read "+path)
	}

	doc, err := l.Parse(raw)
	if err != nil {
		return nil, Document{}, err
	}
	return raw, doc, nil
}

// Parse decodes and validates raw, failing on any missing required
// top-level key. The components key may be an empty mapping but must be
// present, matching the "components: map of name -> {...}" contract in
// spec.md §6 — a document with no components key at all is almost always
// a mistake (the wrong file, a truncated write) rather than a legitimately
// empty pipeline.
func (l *Loader) Parse(raw []byte) (Document, error) {
	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return Document{}, matrixerrors.WrapFatal(err, "config", "Parse", "unmarshal")
	}
	if _, ok := generic["components"]; !ok {
		return Document{}, matrixerrors.WrapFatal(fmt.Errorf("components key is required"), "config", "Parse", "validate")
	}

	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Document{}, matrixerrors.WrapFatal(err, "config", "Parse", "unmarshal")
	}
	if len(doc.Keymaster.URLS.Initial) == 0 {
		return Document{}, matrixerrors.WrapFatal(fmt.Errorf("Keymaster.URLS.Initial must list at least one endpoint"), "config", "Parse", "validate")
	}
	return doc, nil
}
