package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRegistry = `
topics:
  orders.order.created:
    event_type: OrderCreated
    required_keys: [order_id, total_amount]
    field_types:
      order_id: string
      total_amount: number
  payments.payment.captured:
    event_type: PaymentCaptured
    required_keys: [payment_id]
`

func TestParse_BuildsLookupTable(t *testing.T) {
	reg, err := Parse([]byte(sampleRegistry))
	require.NoError(t, err)

	desc, ok := reg.Lookup("orders.order.created")
	require.True(t, ok)
	assert.Equal(t, "OrderCreated", desc.EventType)
	assert.ElementsMatch(t, []string{"order_id", "total_amount"}, desc.RequiredKeys)
	assert.Equal(t, FieldNumber, desc.FieldTypes["total_amount"])
}

func TestLookup_UnknownTopicIsNotFound(t *testing.T) {
	reg, err := Parse([]byte(sampleRegistry))
	require.NoError(t, err)

	_, ok := reg.Lookup("orders.order.shipped")
	assert.False(t, ok)
}

func TestParse_RejectsMissingEventType(t *testing.T) {
	_, err := Parse([]byte(`
topics:
  broken.topic:
    required_keys: [x]
`))
	require.Error(t, err)
}

func TestTopics_ListsAllRegistered(t *testing.T) {
	reg, err := Parse([]byte(sampleRegistry))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"orders.order.created", "payments.payment.captured"}, reg.Topics())
}
