package service

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseHashtags(t *testing.T) {
	tests := []struct {
		name    string
		caption string
		want    []string
	}{
		{name: "case insensitive dedupe", caption: "#Sale #sale #SALE!", want: []string{"sale"}},
		{name: "first seen order", caption: "New drop #Summer_24 with #beach and #summer_24 vibes #Beach", want: []string{"summer_24", "beach"}},
		{name: "adjacent tags", caption: "#one#two", want: []string{"one", "two"}},
		{name: "bare hash ignored", caption: "# not a tag ## either", want: []string{}},
		{name: "unicode letters", caption: "#Café au lait", want: []string{"café"}},
		{name: "empty", caption: "", want: []string{}},
		{name: "whitespace", caption: "   ", want: []string{}},
		{name: "overlong tag skipped", caption: "#ok #" + strings.Repeat("x", maxHashtagRunes+1) + " #fine", want: []string{"ok", "fine"}},
		{name: "tag at column width kept", caption: "#" + strings.Repeat("é", maxHashtagRunes), want: []string{strings.Repeat("é", maxHashtagRunes)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseHashtags(tt.caption)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("ParseHashtags(%q) mismatch (-want +got):\n%s", tt.caption, diff)
			}
		})
	}
}

func TestParseHashtagsIdempotent(t *testing.T) {
	first := ParseHashtags("#Go #gin #GORM #go")
	joined := ""
	for _, tag := range first {
		joined += "#" + tag + " "
	}
	second := ParseHashtags(joined)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("expected reparse to be stable (-first +second):\n%s", diff)
	}
}
