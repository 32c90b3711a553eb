package dicore

import (
	"github.com/junioryono/dicore/internal/prototype"
)

// ServicePrototype is the analyzed blueprint of a class: its constructor,
// injected properties, setters and post-construct hook.
type ServicePrototype = prototype.ServicePrototype

// PrototypeLoader reads a prototype from a slower backing store. It reports
// false when the class is not present there.
type PrototypeLoader = prototype.Loader

// PrototypeStats summarizes the prototype cache.
type PrototypeStats = prototype.Stats

// PrototypeStats returns the prototype cache statistics.
func (c *Container) PrototypeStats() PrototypeStats {
	return c.prototypes.Stats()
}

// WarmUp fills the prototype cache for classNames and returns how many
// prototypes it inserted. A nil loader uses the one set with
// WithPrototypeLoader, or analyzes the classes when none was set. No class
// names means every class of the catalog.
func (c *Container) WarmUp(classNames []string, loader PrototypeLoader) int {
	if len(classNames) == 0 {
		classNames = c.catalog.Names()
	}

	if loader == nil {
		loader = c.opts.loader
	}
	if loader == nil {
		loader = c.analyze
	}

	loaded := c.prototypes.BulkLoad(classNames, loader)
	c.logger.Debug("warmed prototype cache", "requested", len(classNames), "loaded", loaded)
	return loaded
}

// ExportPrototypes returns the cached prototypes in their flat map form, keyed
// by class name. MapLoader turns the result back into a loader.
func (c *Container) ExportPrototypes() map[string]map[string]any {
	snapshot := c.prototypes.Snapshot()
	result := make(map[string]map[string]any, len(snapshot))
	for className, p := range snapshot {
		result[className] = p.ToMap()
	}
	return result
}

// MapLoader returns a loader reading prototypes from their flat map form, as
// produced by ExportPrototypes. Entries that do not decode are skipped.
func MapLoader(entries map[string]map[string]any) PrototypeLoader {
	return func(className string) (*ServicePrototype, bool) {
		m, ok := entries[className]
		if !ok {
			return nil, false
		}
		p, err := prototype.FromMap(m)
		if err != nil {
			return nil, false
		}
		return p, true
	}
}

// analyze is the fallback loader: it runs the analyzer and keeps only
// prototypes of known classes that analyzed without error.
func (c *Container) analyze(className string) (*ServicePrototype, bool) {
	if !c.catalog.Has(className) {
		return nil, false
	}
	analysis, err := c.analyzer.Analyze(className)
	if err != nil {
		return nil, false
	}
	return analysis.Prototype, true
}
