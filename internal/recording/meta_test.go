package recording

import (
	"testing"

	"github.com/DE-IBH/b3lb/internal/store"
)

const metaSample = `<recording>
<meeting id="abc" name="Team Standup"/>
<meta>
<bbb-origin>greenlight</bbb-origin>
<bbb-origin-version>3.0</bbb-origin-version>
<bbb-origin-server-name>gl.example.org</bbb-origin-server-name>
<gl-listed>true</gl-listed>
<isBreakout>false</isBreakout>
</meta>
<start_time>1700000000000</start_time>
<end_time>1700000600000</end_time>
<participants>7</participants>
</recording>`

func TestParseMeta(t *testing.T) {
	meta, err := ParseMeta([]byte(metaSample))
	if err != nil {
		t.Fatalf("ParseMeta: %v", err)
	}
	if meta.MeetingName != "Team Standup" {
		t.Fatalf("MeetingName = %q", meta.MeetingName)
	}
	if meta.BBBOrigin != "greenlight" || meta.BBBOriginServerName != "gl.example.org" {
		t.Fatalf("origin fields: %+v", meta)
	}
	if !meta.GLListed || meta.IsBreakout {
		t.Fatalf("boolean fields: %+v", meta)
	}
	if meta.StartTime != "1700000000000" || meta.EndTime != "1700000600000" {
		t.Fatalf("time fields: %+v", meta)
	}
	if meta.Participants != 7 {
		t.Fatalf("Participants = %d", meta.Participants)
	}
}

func TestParseMetaDefaults(t *testing.T) {
	meta, err := ParseMeta([]byte(`<recording><meeting name="x"/></recording>`))
	if err != nil {
		t.Fatalf("ParseMeta: %v", err)
	}
	if meta.Participants != 1 {
		t.Fatalf("missing participants should default to 1, got %d", meta.Participants)
	}
	if meta.GLListed || meta.IsBreakout {
		t.Fatalf("missing flags should default to false")
	}

	meta, err = ParseMeta([]byte(`<recording><participants>many</participants></recording>`))
	if err != nil {
		t.Fatalf("ParseMeta: %v", err)
	}
	if meta.Participants != 1 {
		t.Fatalf("unparsable participants should default to 1, got %d", meta.Participants)
	}
}

func TestParseMetaRejectsGarbage(t *testing.T) {
	if _, err := ParseMeta([]byte("{}")); err == nil {
		t.Fatalf("non-XML meta must error")
	}
}

func TestMetaApply(t *testing.T) {
	meta, err := ParseMeta([]byte(metaSample))
	if err != nil {
		t.Fatalf("ParseMeta: %v", err)
	}
	var rs store.RecordSet
	meta.Apply(&rs)

	if rs.MetaMeetingName != "Team Standup" || rs.MetaOrigin != "greenlight" {
		t.Fatalf("Apply lost fields: %+v", rs)
	}
	if !rs.MetaGLListed || rs.MetaIsBreakout || rs.MetaParticipants != 7 {
		t.Fatalf("Apply lost flags: %+v", rs)
	}
}
