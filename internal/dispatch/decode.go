package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/subsku/internal/canon"
)

var (
	// ErrUnknownTopic is returned for a topic with no event type.
	ErrUnknownTopic = errors.New("unknown topic")

	// ErrInvalidPayload is returned for a payload that does not decode or
	// lacks a required id.
	ErrInvalidPayload = errors.New("invalid payload")
)

func newEvent(topic Topic) Event {
	switch topic {
	case TopicOrderCreated:
		return &OrderCreated{}
	case TopicOrderCancelled:
		return &OrderCancelled{}
	case TopicOrderReturned:
		return &OrderReturned{}
	case TopicRefundCreated:
		return &RefundCreated{}
	case TopicOrderEdited:
		return &OrderEdited{}
	case TopicInventoryLevelUpdated:
		return &InventoryLevelUpdated{}
	case TopicProductCreated:
		return &ProductCreated{}
	case TopicProductUpdated:
		return &ProductUpdated{}
	}
	return nil
}

// Decode parses a JSON webhook body for topic into its event type, then
// normalizes and validates it. Unknown JSON fields are ignored; platforms
// send far more than the engine reads.
func Decode(topic Topic, body []byte) (Event, error) {
	ev := newEvent(topic)
	if ev == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	if err := json.Unmarshal(body, ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, topic, err)
	}
	ev.normalize()
	if err := ev.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, topic, err)
	}
	return ev, nil
}

// DecodeMap is Decode for an already-parsed payload (YAML fixtures).
func DecodeMap(topic Topic, payload map[string]any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, topic, err)
	}
	return Decode(topic, body)
}

// DeliveryID derives a content ID for a webhook body: the same topic and
// payload always yield the same ID, whatever the key order or whitespace.
func DeliveryID(topic Topic, body []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPayload, topic, err)
	}
	return canon.DeliveryID(string(topic), payload)
}

func required(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

func (e *OrderCreated) validate() error   { return required("order_id", e.OrderID) }
func (e *OrderCancelled) validate() error { return required("order_id", e.OrderID) }
func (e *OrderReturned) validate() error  { return required("order_id", e.OrderID) }

func (e *RefundCreated) validate() error {
	return errors.Join(required("refund_id", e.RefundID), required("order_id", e.OrderID))
}

func (e *OrderEdited) validate() error {
	return errors.Join(required("order_edit_id", e.OrderEditID), required("order_id", e.OrderID))
}

func (e *InventoryLevelUpdated) validate() error {
	return required("inventory_item_id", e.InventoryItemID)
}

func (e *ProductCreated) validate() error { return required("product_id", e.ProductID) }
func (e *ProductUpdated) validate() error { return required("product_id", e.ProductID) }
