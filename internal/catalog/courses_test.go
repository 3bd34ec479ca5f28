package catalog

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestNormalizeCourses(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{"array", `["Mathematics","English"]`, []string{"Mathematics", "English"}},
		{"encoded array", `"[\"Mathematics\", \"English\"]"`, []string{"Mathematics", "English"}},
		{"comma string", `"Mathematics, English ,"`, []string{"Mathematics", "English"}},
		{"bare text", `Physics`, []string{"Physics"}},
		{"duplicates", `["Mathematics","mathematics"," English "]`, []string{"Mathematics", "English"}},
		{"null", `null`, nil},
		{"empty", ``, nil},
	}
	for _, tc := range cases {
		got := NormalizeCourses(json.RawMessage(tc.raw))
		if len(got) == 0 && len(tc.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
