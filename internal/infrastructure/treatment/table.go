package treatment

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
)

// DefaultFallback is returned for labels without an advisory.
const DefaultFallback = "No specific treatment information available for this condition. Consult with an agricultural expert."

//go:embed treatments.yaml
var defaultTable []byte

// Table is a read-only label -> advisory mapping. Lookups are exact.
type Table struct {
	entries  map[domain.Label]string
	fallback string
}

func New(entries map[domain.Label]string, fallback string) *Table {
	if strings.TrimSpace(fallback) == "" {
		fallback = DefaultFallback
	}
	copied := make(map[domain.Label]string, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	return &Table{entries: copied, fallback: fallback}
}

// Default returns the bundled advisory table.
func Default() (*Table, error) {
	return parseYAML(defaultTable)
}

// Load reads a YAML or XLSX table. An empty path yields the bundled table.
func Load(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read treatment table: %w", err)
		}
		table, err := parseYAML(raw)
		if err != nil {
			return nil, fmt.Errorf("treatment table %s: %w", path, err)
		}
		return table, nil
	case ".xlsx":
		return loadXLSX(path)
	default:
		return nil, fmt.Errorf("treatment table %s: unsupported extension", path)
	}
}

func (t *Table) Lookup(label domain.Label) string {
	if text, ok := t.entries[label]; ok {
		return text
	}
	return t.fallback
}

func (t *Table) Len() int {
	return len(t.entries)
}

// Missing lists catalog labels that would resolve to the fallback text.
func (t *Table) Missing(labels []domain.Label) []domain.Label {
	var out []domain.Label
	for _, label := range labels {
		if _, ok := t.entries[label]; !ok {
			out = append(out, label)
		}
	}
	return out
}

type yamlTable struct {
	Fallback   string            `yaml:"fallback"`
	Treatments map[string]string `yaml:"treatments"`
}

func parseYAML(raw []byte) (*Table, error) {
	var doc yamlTable
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(doc.Treatments) == 0 {
		return nil, fmt.Errorf("no treatments defined")
	}

	entries := make(map[domain.Label]string, len(doc.Treatments))
	for label, text := range doc.Treatments {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("treatment for %q is empty", label)
		}
		entries[domain.Label(label)] = text
	}
	return New(entries, doc.Fallback), nil
}

// loadXLSX reads the first sheet. The header row must name a "label" and a
// "treatment" column; a row labelled "*" overrides the fallback text.
func loadXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open treatment workbook: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("treatment workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("treatment workbook %s has no data rows", path)
	}

	labelCol, textCol := -1, -1
	for i, name := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "label":
			labelCol = i
		case "treatment":
			textCol = i
		}
	}
	if labelCol < 0 || textCol < 0 {
		return nil, fmt.Errorf("treatment workbook %s: header must contain label and treatment columns", path)
	}

	entries := make(map[domain.Label]string, len(rows)-1)
	fallback := ""
	for n, row := range rows[1:] {
		if labelCol >= len(row) || strings.TrimSpace(row[labelCol]) == "" {
			continue
		}
		text := ""
		if textCol < len(row) {
			text = row[textCol]
		}
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("treatment workbook %s: row %d has no treatment", path, n+2)
		}
		if row[labelCol] == "*" {
			fallback = text
			continue
		}
		entries[domain.Label(row[labelCol])] = text
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("treatment workbook %s: no treatments defined", path)
	}
	return New(entries, fallback), nil
}
