package dispatch

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Envelope is a topic and its payload as written in a YAML event file.
type Envelope struct {
	Topic   Topic          `yaml:"topic"`
	Payload map[string]any `yaml:"payload"`
}

// Decode turns the envelope into a typed event.
func (e Envelope) Decode() (Event, error) {
	return DecodeMap(e.Topic, e.Payload)
}

// eventFile is the top-level shape of a YAML event file.
type eventFile struct {
	Events []Envelope `yaml:"events"`
}

// LoadEnvelopes reads an event file:
//
//	events:
//	  - topic: orders/create
//	    payload:
//	      order_id: "1001"
//	      line_items: [{id: li1, sku: ABC, quantity: 2}]
func LoadEnvelopes(path string) ([]Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event file: %w", err)
	}
	return ParseEnvelopes(data)
}

// ParseEnvelopes decodes event file content. Unknown keys are rejected.
func ParseEnvelopes(data []byte) ([]Envelope, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f eventFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse event file: %w", err)
	}
	for i, e := range f.Events {
		if newEvent(e.Topic) == nil {
			return nil, fmt.Errorf("event %d: %w: %q", i, ErrUnknownTopic, e.Topic)
		}
	}
	return f.Events, nil
}
