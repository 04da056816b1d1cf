// Package threshold decodes the per-host threshold table.
package threshold

import (
	"fmt"
	"io"
	"sort"

	"github.com/rileyhilliard/gridmon/internal/errors"
	"gopkg.in/yaml.v3"
)

// HostnameKey identifies the host a record belongs to.
const HostnameKey = "hostname"

// Record maps sensor name to threshold, kept in textual form and
// interpreted by the evaluator according to the sensor's kind.
type Record map[string]string

// Table maps hostname to that host's thresholds.
type Table map[string]Record

// Lookup returns the threshold for sensor on host.
func (t Table) Lookup(host, sensor string) (string, bool) {
	rec, ok := t[host]
	if !ok {
		return "", false
	}
	v, ok := rec[sensor]
	return v, ok
}

// Has reports whether the table has an entry for host.
func (t Table) Has(host string) bool {
	_, ok := t[host]
	return ok
}

// Hosts returns the hostnames in the table, sorted.
func (t Table) Hosts() []string {
	out := make([]string, 0, len(t))
	for h := range t {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Parse decodes a YAML stream of threshold records. Each document is either
// a sequence of records or a single record. Scalar values are kept as
// written; nested values are ignored. A later record for the same host
// replaces an earlier one.
func Parse(r io.Reader) (Table, error) {
	table := make(Table)
	dec := yaml.NewDecoder(r)
	for doc := 1; ; doc++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if err == io.EOF {
			return table, nil
		}
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrParse,
				"Threshold table is not valid YAML",
				"Check the output of the thresholds command.")
		}
		if err := addDocument(table, &node, doc); err != nil {
			return nil, err
		}
	}
}

func addDocument(table Table, doc *yaml.Node, docNo int) error {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil
	}
	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		for _, item := range root.Content {
			if err := addRecord(table, item, docNo); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		return addRecord(table, root, docNo)
	case yaml.ScalarNode:
		if root.Tag == "!!null" {
			return nil
		}
		fallthrough
	default:
		return errors.New(errors.ErrParse,
			fmt.Sprintf("Threshold document %d is not a record or a list of records", docNo),
			"Each threshold record should be a mapping with a hostname key.")
	}
	return nil
}

func addRecord(table Table, node *yaml.Node, docNo int) error {
	if node.Kind != yaml.MappingNode {
		return errors.New(errors.ErrParse,
			fmt.Sprintf("Threshold document %d has an entry that is not a record", docNo),
			"Each threshold record should be a mapping with a hostname key.")
	}

	rec := make(Record, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode || val.Tag == "!!null" {
			continue
		}
		rec[key.Value] = val.Value
	}

	host := rec[HostnameKey]
	if host == "" {
		return errors.New(errors.ErrParse,
			fmt.Sprintf("Threshold record without hostname in document %d", docNo),
			"Every threshold record needs a hostname key.")
	}
	delete(rec, HostnameKey)
	table[host] = rec
	return nil
}
