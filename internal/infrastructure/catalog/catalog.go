package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
)

// Load reads the ordered class names from a JSON array of strings. The
// order is the classifier's output order and is never changed afterwards.
func Load(path string) ([]domain.Label, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCatalogLoad, "read label catalog", err)
	}
	labels, err := Parse(raw)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCatalogLoad, "parse label catalog "+path, err)
	}
	return labels, nil
}

func Parse(raw []byte) ([]domain.Label, error) {
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("expected a JSON array of strings: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}

	seen := make(map[string]int, len(names))
	labels := make([]domain.Label, 0, len(names))
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("label %d is blank", i)
		}
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("label %q repeated at %d and %d", name, prev, i)
		}
		seen[name] = i
		labels = append(labels, domain.Label(name))
	}
	return labels, nil
}
