package valkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	c := &Client{keyPrefix: normalizePrefix("wse")}

	assert.Equal(t, "wse:session:failures:42", c.Key("session", "failures", "42"))
	assert.Equal(t, "wse", c.Key())
	assert.Equal(t, "wse:", c.KeyPrefix())
}

func TestKey_NoPrefix(t *testing.T) {
	c := &Client{}
	assert.Equal(t, "a:b", c.Key("a", "b"))
}
