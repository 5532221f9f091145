package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	require.NoError(t, Event{Type: "page_view"}.Validate())
	require.NoError(t, Event{Type: "page_view", Data: []byte(`{"path":"/"}`)}.Validate())

	assert.ErrorIs(t, Event{}.Validate(), ErrInvalidEvent)
	assert.ErrorIs(t, Event{Type: "x", Data: []byte(`[1,2]`)}.Validate(), ErrInvalidEvent)
}

func TestDataOrEmpty(t *testing.T) {
	assert.Equal(t, "{}", string(Event{}.DataOrEmpty()))
	assert.Equal(t, `{"a":1}`, string(Event{Data: []byte(`{"a":1}`)}.DataOrEmpty()))
}
