package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadKinds(t *testing.T) {
	tests := []struct {
		payload Payload
		want    Kind
	}{
		{Registered{}, KindRegistered},
		{Updated{}, KindUpdated},
		{Transferred{}, KindTransferred},
		{Removed{}, KindRemoved},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.payload.Kind())
	}
}

func TestRegisteredFieldOrder(t *testing.T) {
	// Wire compatibility: key, identifier, name, url, caller, at
	data, err := json.Marshal(Registered{
		Key:        "ab12",
		Identifier: "my-mark",
		Name:       "My Mark",
		URL:        "https://example.com",
		Caller:     "alice",
		At:         1700000000000,
	})
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"key":"ab12","identifier":"my-mark","name":"My Mark","url":"https://example.com","caller":"alice","at":1700000000000}`,
		string(data))

	// Field order in the encoded payload follows struct order
	want := `{"key":"ab12","identifier":"my-mark","name":"My Mark","url":"https://example.com","caller":"alice","at":1700000000000}`
	assert.Equal(t, want, string(data))
}

func TestNATSPublisherSubjects(t *testing.T) {
	p := NewNATSPublisher(nil, "", nil)
	assert.Equal(t, "castmark.events.registered", p.Subject(KindRegistered))
	assert.Equal(t, "castmark.events.removed", p.Subject(KindRemoved))

	p = NewNATSPublisher(nil, "custom.prefix", nil)
	assert.Equal(t, "custom.prefix.transferred", p.Subject(KindTransferred))
}

func TestNATSPublisherNilConnectionIsNoop(t *testing.T) {
	p := NewNATSPublisher(nil, "", nil)
	// Must not panic without a connection
	p.Publish(Removed{Key: "ab12", Caller: "admin", At: 1})
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	p.Publish(Updated{Key: "ab12"})
}
