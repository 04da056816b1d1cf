// Package sensor models the scheduler's load-sensor catalog: which sensors
// exist, how each one is compared against its threshold, and how its raw
// values are decoded.
package sensor

import (
	"bufio"
	"io"
	"strings"

	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/logger"
)

// Kind tells the evaluator how to interpret a sensor's values.
type Kind string

const (
	KindNumeric Kind = "NUMERIC"
	KindMemory  Kind = "MEMORY"
	KindOther   Kind = "OTHER"
)

// ParseKind maps a complex-attribute type name to a Kind. Grid Engine's
// INT and DOUBLE types are numeric.
func ParseKind(name string) Kind {
	switch strings.ToUpper(name) {
	case "NUMERIC", "INT", "DOUBLE":
		return KindNumeric
	case "MEMORY":
		return KindMemory
	}
	return KindOther
}

// Unit is the perfdata unit suffix for values of this kind.
func (k Kind) Unit() string {
	if k == KindMemory {
		return "B"
	}
	return ""
}

// Definition describes one sensor from the catalog.
type Definition struct {
	Name       string
	Comparator Comparator
	Kind       Kind
}

// Catalog is the set of known sensors, in the order the catalog listed them.
type Catalog struct {
	order []string
	defs  map[string]Definition
}

// NewCatalog builds a catalog from definitions. A repeated name replaces the
// earlier definition but keeps its position.
func NewCatalog(defs ...Definition) *Catalog {
	c := &Catalog{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		c.add(d)
	}
	return c
}

func (c *Catalog) add(d Definition) {
	if _, exists := c.defs[d.Name]; !exists {
		c.order = append(c.order, d.Name)
	}
	c.defs[d.Name] = d
}

// ParseCatalog reads "name operator kind" lines. Lines that do not have
// exactly three fields are skipped; non-blank ones are logged. The only
// failure is an unreadable stream.
func ParseCatalog(r io.Reader, log logger.Logger) (*Catalog, error) {
	c := NewCatalog()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) != 3 {
			if len(fields) > 0 {
				log.Warn("catalog line %d skipped, expected 3 fields: %q", lineNo, line)
			}
			continue
		}

		cmp := ParseComparator(fields[1])
		if cmp == ComparatorNone {
			log.Debug("sensor %s has no usable operator %q", fields[0], fields[1])
		}
		c.add(Definition{
			Name:       fields[0],
			Comparator: cmp,
			Kind:       ParseKind(fields[2]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrParse,
			"Failed to read sensor catalog",
			"Check the catalog command output.")
	}
	return c, nil
}

// Names returns sensor names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Lookup returns the definition for name.
func (c *Catalog) Lookup(name string) (Definition, bool) {
	d, ok := c.defs[name]
	return d, ok
}

// Has reports whether name is in the catalog.
func (c *Catalog) Has(name string) bool {
	_, ok := c.defs[name]
	return ok
}

// Len returns the number of sensors.
func (c *Catalog) Len() int {
	return len(c.order)
}
