package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/baronglock/Site-legendas/internal/domain"
)

//go:embed plans.yaml
var defaultPlansYAML []byte

// PlanLimits are the client-side limits of one plan.
type PlanLimits struct {
	MaxFileMB       int64 `yaml:"max_file_mb"`
	TranslationOnly bool  `yaml:"translation_only"`
}

// MaxFileBytes returns the upload ceiling in bytes.
func (l PlanLimits) MaxFileBytes() int64 {
	return l.MaxFileMB * 1024 * 1024
}

// PlanCatalog maps plan names to limits.
type PlanCatalog struct {
	Default domain.Plan                `yaml:"default"`
	Plans   map[domain.Plan]PlanLimits `yaml:"plans"`
}

// Lookup returns limits for plan, falling back to the default plan.
func (c PlanCatalog) Lookup(plan domain.Plan) PlanLimits {
	if limits, ok := c.Plans[plan]; ok {
		return limits
	}
	return c.Plans[c.Default]
}

// ParsePlans decodes a YAML plan catalog.
func ParsePlans(data []byte) (PlanCatalog, error) {
	var catalog PlanCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return PlanCatalog{}, fmt.Errorf("parse plans: %w", err)
	}
	if len(catalog.Plans) == 0 {
		return PlanCatalog{}, errors.New("parse plans: no plans defined")
	}
	if catalog.Default == "" {
		catalog.Default = domain.PlanFree
	}
	if _, ok := catalog.Plans[catalog.Default]; !ok {
		return PlanCatalog{}, fmt.Errorf("parse plans: default plan %q not defined", catalog.Default)
	}
	for name, limits := range catalog.Plans {
		if limits.MaxFileMB <= 0 {
			return PlanCatalog{}, fmt.Errorf("parse plans: plan %q has no max_file_mb", name)
		}
	}
	return catalog, nil
}

// DefaultPlans returns the embedded catalog.
func DefaultPlans() PlanCatalog {
	catalog, err := ParsePlans(defaultPlansYAML)
	if err != nil {
		panic(err)
	}
	return catalog
}

// LoadPlans reads a catalog override from path, or the embedded one when absent.
func LoadPlans(path string) (PlanCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultPlans(), nil
		}
		return PlanCatalog{}, err
	}
	return ParsePlans(data)
}
