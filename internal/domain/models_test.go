package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTokenSetValid(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		token TokenSet
		want  bool
	}{
		{"no access token", TokenSet{}, false},
		{"expiry far ahead", TokenSet{AccessToken: "a", ExpiresAt: now.Add(time.Hour)}, true},
		{"inside safety margin", TokenSet{AccessToken: "a", ExpiresAt: now.Add(299 * time.Second)}, false},
		{"exactly at margin", TokenSet{AccessToken: "a", ExpiresAt: now.Add(300 * time.Second)}, false},
		{"just past margin", TokenSet{AccessToken: "a", ExpiresAt: now.Add(301 * time.Second)}, true},
		{"already expired", TokenSet{AccessToken: "a", ExpiresAt: now.Add(-time.Minute)}, false},
		{"relative lifetime above margin", TokenSet{AccessToken: "a", ExpiresIn: 301}, true},
		{"relative lifetime at margin", TokenSet{AccessToken: "a", ExpiresIn: 300}, false},
		{"no expiry information", TokenSet{AccessToken: "a"}, false},
		{"absolute expiry wins over relative", TokenSet{AccessToken: "a", ExpiresAt: now.Add(-time.Minute), ExpiresIn: 9999}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.token.Valid(now); got != tc.want {
				t.Fatalf("Valid() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSourceDedupKey(t *testing.T) {
	if got := (Source{URL: "https://x.test", FileID: "f1"}).DedupKey(); got != "https://x.test" {
		t.Fatalf("url should win: %q", got)
	}
	if got := (Source{FileID: "f1"}).DedupKey(); got != "file:f1" {
		t.Fatalf("file key: %q", got)
	}
}

func TestStringListDecodesArrayOrDelimited(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{"array", `["a@x.test","b@x.test"]`, []string{"a@x.test", "b@x.test"}},
		{"comma string", `"a@x.test, b@x.test"`, []string{"a@x.test", "b@x.test"}},
		{"semicolon string", `"a@x.test; b@x.test ;"`, []string{"a@x.test", "b@x.test"}},
		{"array with blanks", `["a@x.test","  ",""]`, []string{"a@x.test"}},
		{"empty string", `""`, []string{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var list StringList
			if err := json.Unmarshal([]byte(tc.raw), &list); err != nil {
				t.Fatalf("unmarshal %s: %v", tc.raw, err)
			}
			if len(list) != len(tc.want) {
				t.Fatalf("got %v, want %v", list, tc.want)
			}
			for i := range tc.want {
				if list[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", list, tc.want)
				}
			}
		})
	}
}

func TestStringListRejectsOtherTypes(t *testing.T) {
	var list StringList
	if err := json.Unmarshal([]byte(`42`), &list); err == nil {
		t.Fatal("expected error for non-list, non-string value")
	}
}

func TestDraftListFieldsAcceptDelimitedStrings(t *testing.T) {
	var email EmailDraft
	raw := `{"subject":"Hi","bodyHtml":"<p>Hi</p>","recipients":"a@x.test;b@x.test"}`
	if err := json.Unmarshal([]byte(raw), &email); err != nil {
		t.Fatalf("unmarshal email draft: %v", err)
	}
	if len(email.Recipients) != 2 || email.Recipients[1] != "b@x.test" {
		t.Fatalf("recipients = %v", email.Recipients)
	}

	var meeting MeetingDraft
	raw = `{"subject":"Sync","start":"s","end":"e","requiredAttendees":"a@x.test, b@x.test","optionalAttendees":["c@x.test"]}`
	if err := json.Unmarshal([]byte(raw), &meeting); err != nil {
		t.Fatalf("unmarshal meeting draft: %v", err)
	}
	if len(meeting.RequiredAttendees) != 2 || len(meeting.OptionalAttendees) != 1 {
		t.Fatalf("attendees = %v / %v", meeting.RequiredAttendees, meeting.OptionalAttendees)
	}
}
