package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanSmartTypography(t *testing.T) {
	in := "café — “quote”"
	assert.Equal(t, `cafe -- "quote"`, Clean(in))
}

func TestCleanTable(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"it’s", "it's"},
		{"‘a’", "'a'"},
		{"5′10″", `5'10"`},
		{"a–b", "a-b"},
		{"a—b", "a--b"},
		{"wait…", "wait..."},
		{"no break", "no break"},
		{"plain ascii", "plain ascii"},
		{"ctrl\x07chars", "ctrlchars"},
		{"emoji \U0001f399", "emoji "},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Clean(tc.in), "input %q", tc.in)
	}
}

func TestCleanIdempotent(t *testing.T) {
	inputs := []string{
		"café — “quote”",
		"already clean",
		"…—–’",
		"mixed éß世界 end",
	}
	for _, in := range inputs {
		once := Clean(in)
		assert.Equal(t, once, Clean(once), "input %q", in)
	}
}

func TestSanitizerWarnsOncePerBatch(t *testing.T) {
	s := New()

	out, warned := s.Sanitize("smart “quotes”")
	assert.Equal(t, `smart "quotes"`, out)
	assert.True(t, warned)

	// Second lossy call in the same batch stays silent.
	out, warned = s.Sanitize("dash—dash")
	assert.Equal(t, "dash--dash", out)
	assert.False(t, warned)

	// A fresh batch warns again.
	s = New()
	_, warned = s.Sanitize("dash—dash")
	assert.True(t, warned)
}

func TestSanitizerCleanInputNeverWarns(t *testing.T) {
	s := New()
	out, warned := s.Sanitize("nothing to do")
	assert.Equal(t, "nothing to do", out)
	assert.False(t, warned)

	// A clean call must not consume the batch advisory.
	_, warned = s.Sanitize("now — lossy")
	assert.True(t, warned)
}
