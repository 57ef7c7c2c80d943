package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	msg := New("orders", TypeEvent, []byte(`{"id":"123"}`))

	assert.Equal(t, "orders", msg.Header.Topic)
	assert.Equal(t, TypeEvent, msg.Header.MessageType)
	assert.Equal(t, []byte(`{"id":"123"}`), msg.Body.Bytes)
	assert.False(t, msg.Header.Timestamp.IsZero())
}

func TestClone(t *testing.T) {
	msg := New("orders", TypeCommand, []byte("payload"))
	msg.ID = "msg-1"
	msg.SetBagItem("trace-id", "abc")

	clone := msg.Clone()

	clone.Body.Bytes[0] = 'X'
	clone.SetBagItem("trace-id", "changed")

	assert.Equal(t, byte('p'), msg.Body.Bytes[0])
	v, _ := msg.BagItem("trace-id")
	assert.Equal(t, "abc", v)
	assert.Equal(t, "msg-1", clone.ID)
}

func TestClaimCheckID(t *testing.T) {
	msg := New("orders", TypeEvent, nil)
	assert.Empty(t, msg.ClaimCheckID())

	msg.SetBagItem(HeaderClaimCheck, "blob-1")
	assert.Equal(t, "blob-1", msg.ClaimCheckID())

	msg.Header.DataRef = "blob-2"
	assert.Equal(t, "blob-2", msg.ClaimCheckID())
}
