// Package snapshot decodes the scheduler's per-host sensor dump into
// snapshots the evaluator can work through one host at a time.
package snapshot

import (
	"io"
	"regexp"
	"strings"

	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/logger"
	"gopkg.in/yaml.v3"
)

const (
	// AnnotationSuffix marks a field holding the human-readable text for
	// the sensor named by the rest of the key.
	AnnotationSuffix = "_nagtxt"

	hostnameKey = "hostname"
	errorsKey   = "errors"

	// GlobalHost is the pseudo-host carrying cluster-wide values.
	GlobalHost = "global"
)

// Snapshot is one host's sensor readings from one cycle.
type Snapshot struct {
	Hostname    string
	Values      map[string]string
	Annotations map[string]string
	Errors      map[string]string
}

// New returns an empty snapshot for host with all maps allocated.
func New(host string) Snapshot {
	return Snapshot{
		Hostname:    host,
		Values:      map[string]string{},
		Annotations: map[string]string{},
		Errors:      map[string]string{},
	}
}

// Value returns the raw reading for sensor.
func (s Snapshot) Value(sensor string) (string, bool) {
	v, ok := s.Values[sensor]
	return v, ok
}

// Annotation returns the display text for sensor.
func (s Snapshot) Annotation(sensor string) (string, bool) {
	v, ok := s.Annotations[sensor]
	return v, ok
}

// Error returns the normalized error message for sensor.
func (s Snapshot) Error(sensor string) (string, bool) {
	v, ok := s.Errors[sensor]
	return v, ok
}

// Parser decodes multi-document sensor streams.
type Parser struct {
	log logger.Logger
}

// NewParser creates a Parser that reports skipped documents to log.
func NewParser(log logger.Logger) *Parser {
	return &Parser{log: log}
}

// Decode reads one YAML document per host from r. The global pseudo-host
// and documents without a hostname are skipped, as are hosts for which keep
// returns false. A nil keep accepts every host. When the stream turns out
// to be malformed, Decode returns the snapshots decoded before the bad
// document together with an ErrParse error.
func (p *Parser) Decode(r io.Reader, keep func(host string) bool) ([]Snapshot, error) {
	var snaps []Snapshot
	dec := yaml.NewDecoder(r)
	for doc := 1; ; doc++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if err == io.EOF {
			return snaps, nil
		}
		if err != nil {
			return snaps, errors.WrapWithCode(err, errors.ErrParse,
				"Sensor data is not valid YAML",
				"Check the output of the sensors command.")
		}

		root := documentRoot(&node)
		if root == nil {
			continue
		}
		if root.Kind != yaml.MappingNode {
			p.log.Warn("sensor document %d is not a mapping, skipping", doc)
			continue
		}

		snap, ok := p.decodeHost(root, doc)
		if !ok {
			continue
		}
		if snap.Hostname == GlobalHost {
			continue
		}
		if keep != nil && !keep(snap.Hostname) {
			p.log.Debug("no thresholds for host %s, skipping", snap.Hostname)
			continue
		}
		snaps = append(snaps, snap)
	}
}

func documentRoot(n *yaml.Node) *yaml.Node {
	if n.Kind != yaml.DocumentNode || len(n.Content) == 0 {
		return nil
	}
	root := n.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return nil
	}
	return root
}

func (p *Parser) decodeHost(m *yaml.Node, doc int) (Snapshot, bool) {
	var (
		host      string
		rawErrors []string
	)
	values := map[string]string{}
	annotations := map[string]string{}

	for i := 0; i+1 < len(m.Content); i += 2 {
		key, val := m.Content[i].Value, m.Content[i+1]
		switch {
		case key == hostnameKey:
			if val.Kind == yaml.ScalarNode {
				host = val.Value
			}
		case key == errorsKey:
			rawErrors = scalarList(val)
		case val.Kind != yaml.ScalarNode || val.Tag == "!!null":
			// nested or empty values carry nothing to evaluate
		case strings.HasSuffix(key, AnnotationSuffix):
			annotations[strings.TrimSuffix(key, AnnotationSuffix)] = val.Value
		default:
			values[key] = val.Value
		}
	}

	if host == "" {
		p.log.Warn("sensor document %d has no hostname, skipping", doc)
		return Snapshot{}, false
	}

	snap := New(host)
	snap.Values = values
	snap.Annotations = annotations
	snap.Errors = NormalizeErrors(rawErrors, p.log)
	return snap, true
}

func scalarList(n *yaml.Node) []string {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" || n.Value == "" {
			return nil
		}
		return []string{n.Value}
	case yaml.SequenceNode:
		out := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			if item.Kind == yaml.ScalarNode {
				out = append(out, item.Value)
			}
		}
		return out
	}
	return nil
}

var errorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:error:\s*)?no value for "([^"]*)" because execd is in unknown state$`),
	regexp.MustCompile(`^(?:error:\s*)?no complex attribute for threshold (.+)$`),
}

// NormalizeErrors turns the scheduler's free-text error list into a map
// from sensor name to the original message. Messages that match no known
// pattern are logged and dropped. The result is never nil.
func NormalizeErrors(list []string, log logger.Logger) map[string]string {
	out := make(map[string]string, len(list))
	for _, msg := range list {
		msg = strings.TrimSpace(msg)
		sensor, ok := matchError(msg)
		if !ok {
			log.Warn("unrecognised scheduler error dropped: %s", msg)
			continue
		}
		out[sensor] = msg
	}
	return out
}

func matchError(msg string) (string, bool) {
	for _, re := range errorPatterns {
		if m := re.FindStringSubmatch(msg); m != nil {
			return m[1], true
		}
	}
	return "", false
}
