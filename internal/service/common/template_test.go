package common

import (
	"testing"
	"time"

	"github.com/acme/lead-contact-engine/internal/domain"
)

func TestRender(t *testing.T) {
	now := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	lead := domain.Lead{
		ID:            "lead-1",
		Name:          "Ana Souza",
		StageID:       "visit",
		LastContactAt: now.Add(-10 * 24 * time.Hour),
		Attributes:    map[string]string{"course": "Biology", "name": "ignored"},
	}
	vars := TemplateVars(lead, domain.ChannelMessage, now)

	cases := []struct {
		tmpl string
		want string
	}{
		{"Hi {{first_name}}!", "Hi Ana!"},
		{"{{ name }} in {{stage}} for {{days_inactive}} days", "Ana Souza in visit for 10 days"},
		{"About {{course}} via {{channel}}", "About Biology via message"},
		{"Keep {{unknown}} as is", "Keep {{unknown}} as is"},
		{"no placeholders", "no placeholders"},
	}
	for _, tc := range cases {
		if got := Render(tc.tmpl, vars); got != tc.want {
			t.Fatalf("Render(%q) = %q, want %q", tc.tmpl, got, tc.want)
		}
	}
}

func TestPageTokenRoundTrip(t *testing.T) {
	state := []byte{0x00, 0x01, 0xfe, 0xff}
	token := EncodePageToken(state)
	got, err := DecodePageToken(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(got) != string(state) {
		t.Fatalf("round trip mismatch: %v != %v", got, state)
	}
	if EncodePageToken(nil) != "" {
		t.Fatalf("empty state must encode to empty token")
	}
	if _, err := DecodePageToken("!!"); err == nil {
		t.Fatalf("expected error for malformed token")
	}
}
