// internal/llm/catalog.go
package llm

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// ProviderInfo 目录中的一个提供者
type ProviderInfo struct {
	ID           string            `yaml:"id" json:"id"`
	Name         string            `yaml:"name" json:"name"`
	Backend      string            `yaml:"backend" json:"backend"`
	APIBase      string            `yaml:"api_base" json:"apiBase"`
	DefaultModel string            `yaml:"default_model" json:"defaultModel"`
	Models       []string          `yaml:"models" json:"models"`
	Structured   bool              `yaml:"structured" json:"structured"`
	Keyless      bool              `yaml:"keyless" json:"keyless"`
	Aliases      []string          `yaml:"aliases" json:"aliases,omitempty"`
	Headers      map[string]string `yaml:"headers" json:"-"`
}

// Catalog 提供者目录
type Catalog struct {
	providers []ProviderInfo
	index     map[string]int
}

type catalogFile struct {
	Providers []ProviderInfo `yaml:"providers"`
}

// LoadCatalog 解析YAML目录并校验
func LoadCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("解析提供者目录失败: %w", err)
	}

	c := &Catalog{index: make(map[string]int)}
	for _, p := range file.Providers {
		if p.ID == "" || p.Backend == "" || p.DefaultModel == "" {
			return nil, fmt.Errorf("提供者目录条目不完整: %+v", p)
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		i := len(c.providers)
		c.providers = append(c.providers, p)
		for _, key := range append([]string{p.ID}, p.Aliases...) {
			key = strings.ToLower(key)
			if _, dup := c.index[key]; dup {
				return nil, fmt.Errorf("提供者ID重复: %s", key)
			}
			c.index[key] = i
		}
	}
	return c, nil
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog 内置目录
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := LoadCatalog(catalogYAML)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Lookup 按ID或别名查找（忽略大小写）
func (c *Catalog) Lookup(id string) (ProviderInfo, bool) {
	i, ok := c.index[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return ProviderInfo{}, false
	}
	return c.providers[i], true
}

// Providers 按目录顺序返回所有提供者
func (c *Catalog) Providers() []ProviderInfo {
	out := make([]ProviderInfo, len(c.providers))
	copy(out, c.providers)
	return out
}
