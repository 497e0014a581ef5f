package adapter

import (
	"strings"
	"testing"
)

func TestSplitCallbackData(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw, unique, data string
	}{
		{"\fzbx_ack|123", "zbx_ack", "123"},
		{"\fzbx_unack|", "zbx_unack", ""},
		{"\fonly", "only", ""},
		{"plain", "", "plain"},
	}
	for _, tc := range cases {
		u, d := splitCallbackData(tc.raw)
		if u != tc.unique || d != tc.data {
			t.Fatalf("splitCallbackData(%q)=%q,%q want %q,%q", tc.raw, u, d, tc.unique, tc.data)
		}
	}
}

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()

	if got := splitTelegramText("short", 10, ""); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text split: %q", got)
	}

	long := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitTelegramText(long, 10, "")
	if len(got) != 2 || got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("newline split: %q", got)
	}

	html := "abcdefg<b>bold</b>"
	got = splitTelegramText(html, 9, "HTML")
	if got[0] != "abcdefg" {
		t.Fatalf("split inside tag: %q", got)
	}
	if strings.Join(got, "") != html {
		t.Fatalf("content lost: %q", got)
	}
}
