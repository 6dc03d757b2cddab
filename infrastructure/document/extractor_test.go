package document

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseText_NameAndMobile(t *testing.T) {
	text := "City Lab\nPatient Name: John Doe Smith Ward 4\nMobile: +91 9876543210\n"
	out := ParseText(text)

	require.NotNil(t, out.Mobile)
	assert.Equal(t, "919876543210", *out.Mobile)
	require.NotNil(t, out.Name)
	assert.Equal(t, "John Doe S", *out.Name)
}

func TestParseText_MobileForms(t *testing.T) {
	cases := map[string]string{
		"call 9876543210 now":    "919876543210",
		"tel: 919876543210":      "919876543210",
		"contact +91-9876543210": "919876543210",
	}
	for text, want := range cases {
		out := ParseText(text)
		require.NotNil(t, out.Mobile, text)
		assert.Equal(t, want, *out.Mobile, text)
	}
}

func TestParseText_Missing(t *testing.T) {
	out := ParseText("Report Date: 2024-01-01\nRef 12345")
	assert.Nil(t, out.Mobile)
	assert.Nil(t, out.Name)
	assert.False(t, out.Complete())
}

func TestParseText_CustomerNameOnly(t *testing.T) {
	out := ParseText("customer name : Ravi\n")
	require.NotNil(t, out.Name)
	assert.Equal(t, "Ravi", *out.Name)
	assert.Nil(t, out.Mobile)
}

func TestParseText_Preview(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "abcdef "
	}
	out := ParseText(long)
	assert.Len(t, []rune(out.TextPreview), 100)
}

func TestExtract_BadFile(t *testing.T) {
	_, err := NewPDFExtractor().Extract(context.Background(), "does-not-exist.pdf")
	assert.Error(t, err)
}
