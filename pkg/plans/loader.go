package plans

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/clienthub/clienthub/pkg/observability"
)

// catalogFile is the on-disk shape of a plan catalog override file
type catalogFile struct {
	Plans []*Definition `yaml:"plans"`
}

// LoadFile reads a YAML plan file and replaces the catalog contents with it.
// The file must describe a complete, valid plan set: every tier present must
// be a known tier, and limits must be >= Unlimited.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read plan file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse plan file: %w", err)
	}
	if len(file.Plans) == 0 {
		return fmt.Errorf("plan file %s defines no plans", path)
	}

	defs := make(map[Tier]*Definition, len(file.Plans))
	for _, def := range file.Plans {
		if !def.Tier.Valid() {
			return &UnknownTierError{Tier: def.Tier}
		}
		for resource, limit := range def.Limits {
			if limit < Unlimited {
				return fmt.Errorf("plan %s: invalid limit %d for %s", def.Tier, limit, resource)
			}
		}
		defs[def.Tier] = def
	}

	c.replace(defs)
	return nil
}

// Watch reloads the catalog whenever the plan file changes. It blocks until
// the context is cancelled and is intended to run in its own goroutine.
// A reload failure keeps the previous catalog and logs a warning.
func (c *Catalog) Watch(ctx context.Context, path string, log *observability.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors and config maps replace
	// files atomically, which drops the watch on the inode.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := c.LoadFile(path); err != nil {
				log.WithError(err).Warn("plan catalog reload failed, keeping previous catalog")
				continue
			}
			log.WithField("path", path).Info("plan catalog reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("plan catalog watcher error")
		}
	}
}
