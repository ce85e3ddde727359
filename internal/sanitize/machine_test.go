package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMachineName(t *testing.T) {
	cases := []struct {
		label string
		want  string
	}{
		{"Morning Show", "morning_show"},
		{"Café del Mar", "cafe_del_mar"},
		{"  Tech -- Weekly!  ", "tech_weekly"},
		{"Folge 42", "folge_42"},
		{"Über Alles", "uber_alles"},
		{"***", ""},
		{"already_fine", "already_fine"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, MachineName(tc.label), "label %q", tc.label)
	}
}
