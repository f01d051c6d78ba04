package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare label gets .com", "foo", "foo.com"},
		{"upper case lowered", "  FooBar ", "foobar.com"},
		{"dotted kept", "Example.XYZ", "example.xyz"},
		{"subdomain kept", "a.b.io", "a.b.io"},
		{"idn encoded", "münchen", "xn--mnchen-3ya.com"},
		{"idn with tld", "bücher.de", "xn--bcher-kva.de"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDomain(tt.input))
		})
	}
}

func TestNormalizeDomain_DotlessAlwaysSuffixed(t *testing.T) {
	for _, q := range []string{"a", "getfoo", "x-y", "123"} {
		assert.Equal(t, q+".com", NormalizeDomain(q))
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@b.com", NormalizeEmail("  A@B.Com "))
}

func TestBaseLabel(t *testing.T) {
	assert.Equal(t, "foo", BaseLabel("foo"))
	assert.Equal(t, "foo", BaseLabel("Foo.co.uk"))
	assert.Equal(t, "", BaseLabel(".com"))
}
