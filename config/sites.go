package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aluiziolira/go-scrape-prices/models"
	"gopkg.in/yaml.v3"
)

// LoadSites reads the site list from a JSON or YAML file. Only an unreadable
// list is an error; incomplete entries and selector problems are left on each
// site for the processor to report.
func LoadSites(path string) ([]*models.Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sites file: %w", err)
	}
	return ParseSites(data, filepath.Ext(path))
}

// ParseSites decodes a site list. ext selects the format; anything other than
// .yaml or .yml is read as JSON.
func ParseSites(data []byte, ext string) ([]*models.Site, error) {
	var sites []*models.Site
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &sites); err != nil {
			return nil, fmt.Errorf("decode yaml sites: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &sites); err != nil {
			return nil, fmt.Errorf("decode json sites: %w", err)
		}
	}

	for i, site := range sites {
		if site == nil {
			sites[i] = &models.Site{}
			site = sites[i]
		}
		if strings.TrimSpace(site.URL) == "" || strings.TrimSpace(site.DocumentID) == "" {
			slog.Warn("incomplete site entry",
				slog.Int("index", i),
				slog.String("url", site.URL),
				slog.String("document_id", site.DocumentID),
			)
		}
	}
	return sites, nil
}
