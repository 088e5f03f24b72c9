package links

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "empty",
			text: "",
			want: []string{},
		},
		{
			name: "first seen order",
			text: "see http://a.com and https://b.com/x",
			want: []string{"http://a.com", "https://b.com/x"},
		},
		{
			name: "duplicates collapse",
			text: "https://b.com/x then http://a.com then https://b.com/x again",
			want: []string{"https://b.com/x", "http://a.com"},
		},
		{
			name: "stops at brackets and quotes",
			text: `(https://a.com/p) <https://b.com> "https://c.com/q"`,
			want: []string{"https://a.com/p", "https://b.com", "https://c.com/q"},
		},
		{
			name: "keeps trailing punctuation",
			text: "go to https://a.com/p. now",
			want: []string{"https://a.com/p."},
		},
		{
			name: "case insensitive scheme",
			text: "HTTPS://A.com/X",
			want: []string{"HTTPS://A.com/X"},
		},
		{
			name: "no urls",
			text: "nothing to see here",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.text))
		})
	}
}

func TestNormalize_QueryOrderAndFragment(t *testing.T) {
	a, err := Normalize("https://ex.com/a?b=2&a=1#frag")
	require.NoError(t, err)
	b, err := Normalize("https://ex.com/a?a=1&b=2")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, "https://ex.com/a?a=1&b=2", a)
}

func TestNormalize_TrailingSlash(t *testing.T) {
	a, err := Normalize("https://ex.com/a/")
	require.NoError(t, err)
	b, err := Normalize("https://ex.com/a")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestNormalize_RepeatedKeysKeepValueOrder(t *testing.T) {
	got, err := Normalize("https://ex.com/?z=1&k=b&k=a")
	require.NoError(t, err)

	assert.Equal(t, "https://ex.com/?k=b&k=a&z=1", got)
}

func TestNormalize_BareHost(t *testing.T) {
	got, err := Normalize("https://EX.com")
	require.NoError(t, err)

	assert.Equal(t, "https://ex.com", got)
}

func TestNormalize_Unparsable(t *testing.T) {
	for _, raw := range []string{"http://[::1", "not a url", "", "https://ex.com/?q=%zz"} {
		_, err := Normalize(raw)
		assert.ErrorIs(t, err, ErrUnparsable, raw)
	}
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "example.com", Domain("https://example.com/path?y=1&z=2"))
	assert.Equal(t, "example.com", Domain("https://example.com:8443/x"))
	assert.Equal(t, "unknown", Domain("::nope"))
}
