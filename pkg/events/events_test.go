package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	ev := Token("sess-1", "hel")
	parsed, err := Parse(ev.Marshal())
	require.NoError(t, err)
	assert.Equal(t, TypeToken, parsed.Type)
	assert.Equal(t, "sess-1", parsed.SessionID)
	assert.Equal(t, "hel", parsed.Data)
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse([]byte("{not json"))
	assert.Error(t, err)
}

func TestParseRejectsMissingType(t *testing.T) {
	_, err := Parse([]byte(`{"data":"x"}`))
	assert.Error(t, err)
}

func TestErrorEventCarriesCode(t *testing.T) {
	ev := Error("rate_limited", "too many requests")
	parsed, err := Parse(ev.Marshal())
	require.NoError(t, err)
	assert.Equal(t, TypeError, parsed.Type)
	assert.Equal(t, "rate_limited", parsed.Code)
	assert.Equal(t, "too many requests", parsed.Message)
}
