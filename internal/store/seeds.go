package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// VideosCategory is the seeded category that collects watch-later links.
const VideosCategory = "Videos"

// seedDefinition is the YAML schema for category seeds: a flat list of
// category paths, "Parent" or "Parent/Child".
type seedDefinition struct {
	Categories []string `yaml:"categories"`
}

// builtinSeeds is the default category tree every user starts with.
const builtinSeeds = `
categories:
  - Work
  - Work/Meetings
  - Personal
  - Personal/Health
  - Errands
  - Videos
  - Someday
`

// SeedCategories ensures the user has the built-in category tree, plus any
// extra paths from the store's optional seed file. Existing categories are
// left untouched (ResolveCategoryPath is get-or-create).
func (s *SQLiteStore) SeedCategories(ctx context.Context, userID string) error {
	paths, err := loadSeedPaths(s.SeedPath, s.logger)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if _, err := s.ResolveCategoryPath(ctx, userID, p); err != nil {
			return fmt.Errorf("seed category %q: %w", p, err)
		}
	}
	return nil
}

func loadSeedPaths(extraSeedPath string, logger *slog.Logger) ([]string, error) {
	var def seedDefinition
	if err := yaml.Unmarshal([]byte(builtinSeeds), &def); err != nil {
		return nil, fmt.Errorf("builtin seeds: %w", err)
	}
	paths := def.Categories

	if extraSeedPath != "" {
		data, err := os.ReadFile(extraSeedPath)
		if err != nil {
			logger.Warn("cannot read category seed file, using builtins only",
				"path", extraSeedPath, "err", err)
			return paths, nil
		}
		var extra seedDefinition
		if err := yaml.Unmarshal(data, &extra); err != nil {
			logger.Warn("cannot parse category seed file", "path", extraSeedPath, "err", err)
			return paths, nil
		}
		for _, p := range extra.Categories {
			if strings.TrimSpace(p) != "" {
				paths = append(paths, p)
			}
		}
	}
	return paths, nil
}
