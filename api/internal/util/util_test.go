package util

import "testing"

func TestSniffImageMIME(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg"},
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0}, "image/png"},
		{"gif", []byte("GIF89a...."), "image/gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		{"pdf", []byte("%PDF-1.7"), ""},
		{"empty", nil, ""},
	}
	for _, c := range cases {
		if got := SniffImageMIME(c.in); got != c.want {
			t.Errorf("%s: want=%q got=%q", c.name, c.want, got)
		}
	}
}

func TestPickImageMIMERejectsText(t *testing.T) {
	if got := PickImageMIME("image/png", []byte("hello world")); got != "" {
		t.Fatalf("declared image/png over text bytes must be rejected, got %q", got)
	}
}

func TestStripCodeFences(t *testing.T) {
	in := "```json\n{\"selected\": [\"p1\"]}\n```"
	if got := StripCodeFences(in); got != `{"selected": ["p1"]}` {
		t.Fatalf("got %q", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	s, cut := TruncateRunes("производная", 4)
	if s != "прои" || !cut {
		t.Fatalf("got %q cut=%v", s, cut)
	}
	s, cut = TruncateRunes("abc", 10)
	if s != "abc" || cut {
		t.Fatalf("got %q cut=%v", s, cut)
	}
}
