package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"9876543210":        "919876543210",
		"98765 43210":       "919876543210",
		"+91 98765-43210":   "919876543210",
		"919876543210":      "919876543210",
		"(987) 654-3210":    "919876543210",
		"":                  "",
		"abc":               "",
		"14155552671":       "14155552671",
		"+44 20 7946 0958 ": "442079460958",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	for _, in := range []string{"9876543210", "+91 98765 43210", "14155552671", "0"} {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
	assert.Equal(t, Normalize("9876543210"), Normalize("919876543210"))
}

func TestJID(t *testing.T) {
	jid, ok := JID("98765 43210")
	assert.True(t, ok)
	assert.Equal(t, "919876543210@s.whatsapp.net", jid.String())

	_, ok = JID("n/a")
	assert.False(t, ok)
}
