// Package evaluate holds sensor readings against their thresholds and turns
// every (host, sensor) pair into a passive-check result.
package evaluate

import (
	"strconv"
	"strings"

	"github.com/rileyhilliard/gridmon/internal/logger"
	"github.com/rileyhilliard/gridmon/internal/sensor"
	"github.com/rileyhilliard/gridmon/internal/snapshot"
	"github.com/rileyhilliard/gridmon/internal/threshold"
)

// Status is the passive-check return code. Only OK and problem are used.
type Status int

const (
	StatusOK      Status = 0
	StatusProblem Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusProblem:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

// Result is one check outcome for one sensor on one host.
type Result struct {
	Hostname string `json:"hostname"`
	Sensor   string `json:"sensor"`
	Status   Status `json:"status"`
	Detail   string `json:"detail"`
}

// reserved are identity fields that look like sensors but never are.
var reserved = map[string]bool{
	"hostname": true,
	"qname":    true,
}

// Evaluator compares snapshots against one cycle's catalog and thresholds.
type Evaluator struct {
	thresholds threshold.Table
	sensors    []sensor.Definition
	log        logger.Logger
}

// New creates an Evaluator. The evaluable sensors are fixed here: every
// catalog entry that is not an annotation, not an identity field, and has
// an annotation counterpart in the catalog.
func New(catalog *sensor.Catalog, thresholds threshold.Table, log logger.Logger) *Evaluator {
	e := &Evaluator{thresholds: thresholds, log: log}
	for _, name := range catalog.Names() {
		if !Evaluable(catalog, name) {
			continue
		}
		def, _ := catalog.Lookup(name)
		e.sensors = append(e.sensors, def)
	}
	return e
}

// Evaluable reports whether name is a monitorable sensor in catalog.
func Evaluable(catalog *sensor.Catalog, name string) bool {
	if strings.HasSuffix(name, snapshot.AnnotationSuffix) || reserved[name] {
		return false
	}
	return catalog.Has(name + snapshot.AnnotationSuffix)
}

// Sensors returns the names of the evaluable sensors in catalog order.
func (e *Evaluator) Sensors() []string {
	out := make([]string, len(e.sensors))
	for i, d := range e.sensors {
		out[i] = d.Name
	}
	return out
}

// Evaluate produces one Result per snapshot and evaluable sensor, ordered
// by snapshot and then by catalog position.
func (e *Evaluator) Evaluate(snaps []snapshot.Snapshot) []Result {
	results := make([]Result, 0, len(snaps)*len(e.sensors))
	for _, snap := range snaps {
		for _, def := range e.sensors {
			results = append(results, e.evaluate(snap, def))
		}
	}
	return results
}

func (e *Evaluator) evaluate(snap snapshot.Snapshot, def sensor.Definition) Result {
	res := Result{Hostname: snap.Hostname, Sensor: def.Name, Status: StatusOK}

	value, hasValue := snap.Value(def.Name)
	limit, hasLimit := e.thresholds.Lookup(snap.Hostname, def.Name)
	if hasValue && hasLimit {
		res.Status = e.compare(snap.Hostname, def, value, limit)
	}

	unit := def.Kind.Unit()
	switch annotation, hasAnnotation := snap.Annotation(def.Name); {
	case hasValue && hasAnnotation:
		res.Detail = annotation + "|" + perfdata(def.Name, value, unit)
	case hasValue:
		res.Detail = value + unit + "|" + perfdata(def.Name, value, unit)
	default:
		if msg, hasError := snap.Error(def.Name); hasError {
			res.Status = StatusProblem
			res.Detail = msg
		} else {
			res.Detail = "0"
		}
	}
	return res
}

func perfdata(name, value, unit string) string {
	return name + "=" + value + unit
}

// compare applies the sensor's rule. Values that cannot be interpreted
// for the sensor's kind, and sensors without a rule, are never flagged.
func (e *Evaluator) compare(host string, def sensor.Definition, value, limit string) Status {
	if def.Comparator == sensor.ComparatorNone {
		e.log.Debug("%s/%s: no comparison rule, reporting OK", host, def.Name)
		return StatusOK
	}

	var hit bool
	switch def.Kind {
	case sensor.KindMemory:
		v, err := sensor.DecodeMemory(value)
		if err != nil {
			e.log.Error("%s/%s: value: %v", host, def.Name, err)
			return StatusOK
		}
		l, err := sensor.DecodeMemory(limit)
		if err != nil {
			e.log.Error("%s/%s: threshold: %v", host, def.Name, err)
			return StatusOK
		}
		hit, _ = def.Comparator.Apply(v, l)

	case sensor.KindNumeric:
		v, l, ok := parsePair(value, limit)
		if !ok {
			e.log.Error("%s/%s: can't compare %q with threshold %q as numbers", host, def.Name, value, limit)
			return StatusOK
		}
		hit, _ = def.Comparator.Apply(v, l)

	default:
		if v, l, ok := parsePair(value, limit); ok {
			hit, _ = def.Comparator.Apply(v, l)
		} else {
			hit, _ = def.Comparator.ApplyString(value, limit)
		}
	}

	if hit {
		return StatusProblem
	}
	return StatusOK
}

func parsePair(a, b string) (float64, float64, bool) {
	x, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return 0, 0, false
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return 0, 0, false
	}
	return x, y, true
}
