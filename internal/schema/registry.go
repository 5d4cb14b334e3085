// Package schema implements the Topic Router (spec.md §4.1): a static,
// startup-loaded mapping from bus topic to the event schema it carries.
// Variant dispatch is by table lookup, never by subtype dispatch (spec.md
// §9 "Polymorphic event records").
package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FieldType is the set of primitive JSON types a payload field can declare.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBool    FieldType = "bool"
	FieldObject  FieldType = "object"
	FieldArray   FieldType = "array"
	FieldAny     FieldType = "any"
)

// Descriptor is the schema for one event type: its name and the shape its
// payload is required to have. Required keys absent from the payload are
// rejected by the Validator; keys not listed here are preserved verbatim in
// event_data (spec.md §4.2 forward compatibility) and never checked.
type Descriptor struct {
	EventType    string               `yaml:"event_type"`
	RequiredKeys []string             `yaml:"required_keys"`
	FieldTypes   map[string]FieldType `yaml:"field_types"`
}

// topicsFile is the on-disk shape of the registry file.
type topicsFile struct {
	Topics map[string]Descriptor `yaml:"topics"`
}

// Registry maps bus topic names to their Descriptor.
type Registry struct {
	byTopic map[string]Descriptor
}

// Load parses a YAML topic-registry file (spec.md §4.1: "registration is
// static... declared at startup").
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topic registry %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Registry directly from YAML bytes (used by Load and by
// tests that don't want a file on disk).
func Parse(data []byte) (*Registry, error) {
	var tf topicsFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse topic registry: %w", err)
	}
	r := &Registry{byTopic: make(map[string]Descriptor, len(tf.Topics))}
	for topic, desc := range tf.Topics {
		if desc.EventType == "" {
			return nil, fmt.Errorf("topic registry: topic %q has no event_type", topic)
		}
		r.byTopic[topic] = desc
	}
	return r, nil
}

// Lookup resolves a topic to its Descriptor. The second return is false for
// an unregistered topic, which the Dispatcher classifies UnknownTopic
// (spec.md §4.1: a configuration fault, routed to DLQ, partition advances).
func (r *Registry) Lookup(topic string) (Descriptor, bool) {
	d, ok := r.byTopic[topic]
	return d, ok
}

// Topics returns every registered topic name, for subscribing the consumer
// group to exactly the known set.
func (r *Registry) Topics() []string {
	topics := make([]string, 0, len(r.byTopic))
	for t := range r.byTopic {
		topics = append(topics, t)
	}
	return topics
}
