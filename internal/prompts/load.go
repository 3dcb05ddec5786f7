package prompts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"call-quality-eval/backend/internal/apierr"
)

// DefaultFile is the document name looked up beside the executable.
const DefaultFile = "prompts-config.json"

// Load reads a JSON or YAML prompt document. The format follows the file extension.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apierr.Configuration(fmt.Errorf("read prompts config %s: %w", path, err))
	}

	var doc Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, apierr.Configuration(fmt.Errorf("parse prompts config %s: %w", path, err))
	}
	return &doc, nil
}

// DefaultPath resolves PROMPTS_CONFIG_PATH, falling back to DefaultFile next to the binary.
func DefaultPath() string {
	if v := strings.TrimSpace(os.Getenv("PROMPTS_CONFIG_PATH")); v != "" {
		return v
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Join(filepath.Dir(exe), DefaultFile)
	}
	return DefaultFile
}

// Cache loads the document on first use and hands out the same snapshot afterwards.
// The snapshot is never mutated, so readers need no locking.
type Cache struct {
	path string
	once sync.Once
	doc  *Document
	err  error
}

// NewCache creates a cache for the document at path.
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// NewStaticCache wraps an already built document.
func NewStaticCache(doc *Document) *Cache {
	c := &Cache{doc: doc}
	c.once.Do(func() {})
	return c
}

// Get returns the cached document, loading it on the first call.
func (c *Cache) Get() (*Document, error) {
	c.once.Do(func() {
		c.doc, c.err = Load(c.path)
		if c.err != nil {
			logrus.WithError(c.err).WithField("path", c.path).Error("load prompts config")
			return
		}
		logrus.WithFields(logrus.Fields{
			"path":               c.path,
			"categories":         len(c.doc.Categories),
			"product_categories": len(c.doc.ProductCategories),
			"prompt_groups":      len(c.doc.Prompts),
		}).Info("prompts config loaded and cached")
	})
	return c.doc, c.err
}

// Path reports the document location, empty for static caches.
func (c *Cache) Path() string {
	return c.path
}
