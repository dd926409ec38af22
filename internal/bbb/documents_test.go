package bbb

import (
	"strings"
	"testing"
)

func TestExtractMeetingsAndChildText(t *testing.T) {
	raw := `<response><returncode>SUCCESS</returncode><meetings>` +
		`<meeting><meetingID>alpha</meetingID><running>true</running></meeting>` +
		`<meeting><meetingID>beta</meetingID></meeting>` +
		`</meetings></response>`

	meetings, err := ExtractMeetings(raw)
	if err != nil {
		t.Fatalf("ExtractMeetings: %v", err)
	}
	if len(meetings) != 2 {
		t.Fatalf("expected 2 meetings, got %d", len(meetings))
	}
	if got := meetings[0].ChildText("meetingID"); got != "alpha" {
		t.Fatalf("ChildText(meetingID) = %q", got)
	}
	if got := meetings[0].ChildText("running"); got != "true" {
		t.Fatalf("ChildText(running) = %q", got)
	}
	if got := meetings[1].ChildText("running"); got != "" {
		t.Fatalf("missing child should yield empty string, got %q", got)
	}
}

func TestRenderGetMeetingsRoundTrip(t *testing.T) {
	raw := `<response><returncode>SUCCESS</returncode><meetings>` +
		`<meeting><meetingID>a &amp; b</meetingID><metadata><bbb-origin>gl</bbb-origin></metadata></meeting>` +
		`</meetings></response>`

	meetings, err := ExtractMeetings(raw)
	if err != nil {
		t.Fatalf("ExtractMeetings: %v", err)
	}
	out := RenderGetMeetings(meetings)

	if !strings.HasPrefix(out, "<response>\r\n<returncode>SUCCESS</returncode>\r\n<meetings>\r\n") {
		t.Fatalf("unexpected document head: %q", out)
	}
	if !strings.Contains(out, "<meetingID>a &amp; b</meetingID>") {
		t.Fatalf("meeting ID not re-escaped: %q", out)
	}
	if !strings.Contains(out, "<metadata><bbb-origin>gl</bbb-origin></metadata>") {
		t.Fatalf("nested metadata lost: %q", out)
	}

	// The rendered document must itself parse.
	again, err := ExtractMeetings(out)
	if err != nil {
		t.Fatalf("re-parse rendered document: %v", err)
	}
	if len(again) != 1 || again[0].ChildText("meetingID") != "a & b" {
		t.Fatalf("round trip lost data: %+v", again)
	}
}

func TestRenderGetRecordings(t *testing.T) {
	out := RenderGetRecordings([]RecordingInfo{
		{
			RecordID:       "4f2c7f6a-0000-0000-0000-000000000001",
			MeetingID:      "room-1",
			Name:           "Weekly <Sync>",
			Published:      true,
			GLListed:       true,
			StartTime:      "1700000000000",
			EndTime:        "1700000600000",
			Participants:   4,
			VideoSize:      1024,
			VideoURL:       "https://api.example.org/b3lb/r/abc",
			VideoLengthMin: 10,
		},
		{
			RecordID:  "4f2c7f6a-0000-0000-0000-000000000002",
			MeetingID: "room-2",
		},
	})

	if !strings.Contains(out, "<name>Weekly &lt;Sync&gt;</name>") {
		t.Fatalf("name not escaped: %q", out)
	}
	if !strings.Contains(out, "<state>published</state>") {
		t.Fatalf("published record state missing")
	}
	if !strings.Contains(out, "<state>unpublished</state>") {
		t.Fatalf("unpublished record state missing")
	}
	if !strings.Contains(out, "<url>https://api.example.org/b3lb/r/abc</url>") {
		t.Fatalf("playback url missing")
	}
	if strings.Count(out, "<recording>") != 2 {
		t.Fatalf("expected 2 recording blocks")
	}
}

func TestXMLEscape(t *testing.T) {
	if got := XMLEscape(`<a href="x">&'</a>`); got != "&lt;a href=&quot;x&quot;&gt;&amp;&apos;&lt;/a&gt;" {
		t.Fatalf("XMLEscape = %q", got)
	}
}

func TestNonceAndSecretShape(t *testing.T) {
	nonce := Nonce()
	if len(nonce) != NonceLength {
		t.Fatalf("nonce length %d, want %d", len(nonce), NonceLength)
	}
	for _, c := range nonce {
		if !strings.ContainsRune(NonceCharPool, c) {
			t.Fatalf("nonce contains %q outside pool", c)
		}
	}
	if Nonce() == nonce {
		t.Fatalf("two nonces collided")
	}

	secret := RandomSecret()
	if len(secret) != SecretLength {
		t.Fatalf("secret length %d, want %d", len(secret), SecretLength)
	}
	for _, c := range secret {
		if !strings.ContainsRune(SecretCharPool, c) {
			t.Fatalf("secret contains %q outside pool", c)
		}
	}
}

func TestIsMeetingNameLengthFine(t *testing.T) {
	if IsMeetingNameLengthFine("a") {
		t.Fatalf("single char name must be rejected")
	}
	if !IsMeetingNameLengthFine("ab") {
		t.Fatalf("two char name must be accepted")
	}
	if !IsMeetingNameLengthFine(strings.Repeat("x", 256)) {
		t.Fatalf("256 char name must be accepted")
	}
	if IsMeetingNameLengthFine(strings.Repeat("x", 257)) {
		t.Fatalf("257 char name must be rejected")
	}
}
