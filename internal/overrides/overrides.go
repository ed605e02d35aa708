// Package overrides applies organization-specific customizations to a
// checked-out source tree before building: a recursive JSON merge for
// configuration files and a straight overlay copy for everything else.
package overrides

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"shipyard/internal/fileutil"
)

// MergeJSON merges override values into base. Objects merge recursively;
// every other value type in the override replaces the base value. Keys
// present only in base are kept.
func MergeJSON(base, override map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(override))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range override {
		baseChild, baseOK := merged[key].(map[string]any)
		overChild, overOK := value.(map[string]any)
		if baseOK && overOK {
			merged[key] = MergeJSON(baseChild, overChild)
			continue
		}
		merged[key] = value
	}
	return merged
}

// MergeJSONFile rewrites target by merging the override file into it. A
// missing target is treated as an empty document.
func MergeJSONFile(target, overridePath string) error {
	base := map[string]any{}
	if data, err := os.ReadFile(target); err == nil {
		if err := json.Unmarshal(data, &base); err != nil {
			return fmt.Errorf("parse %s: %w", target, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", target, err)
	}

	data, err := os.ReadFile(overridePath)
	if err != nil {
		return fmt.Errorf("read %s: %w", overridePath, err)
	}
	override := map[string]any{}
	if err := json.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parse %s: %w", overridePath, err)
	}

	merged, err := json.MarshalIndent(MergeJSON(base, override), "", "  ")
	if err != nil {
		return fmt.Errorf("encode merged %s: %w", target, err)
	}
	return os.WriteFile(target, append(merged, '\n'), 0o644)
}

// Apply overlays the override directory onto the source tree. JSON files
// are merged into their counterparts; all other files are copied over,
// replacing what is there. An empty or absent override directory is a
// no-op.
func Apply(overrideDir, sourceDir string) error {
	if strings.TrimSpace(overrideDir) == "" {
		return nil
	}
	if _, err := os.Stat(overrideDir); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("stat overrides: %w", err)
	}

	return filepath.WalkDir(overrideDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(overrideDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(sourceDir, rel)
		if entry.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".json") {
			return MergeJSONFile(target, path)
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		return fileutil.CopyFileMode(path, target, info.Mode().Perm())
	})
}
