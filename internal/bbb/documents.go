package bbb

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Element is a generic XML node used to carry node census meetings from
// the NodeMeetingList documents into the per-secret getMeetings view
// without losing fields the balancer does not model.
type Element struct {
	XMLName  xml.Name
	Content  string    `xml:",chardata"`
	Children []Element `xml:",any"`
}

type meetingsDocument struct {
	Meetings []Element `xml:"meetings>meeting"`
}

// ExtractMeetings returns every <meeting> element of a node getMeetings
// document.
func ExtractMeetings(raw string) ([]Element, error) {
	var doc meetingsDocument
	if err := xml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("parse node meeting list: %w", err)
	}
	return doc.Meetings, nil
}

// ChildText returns the text of the first direct child with the given
// tag, or "".
func (e Element) ChildText(tag string) string {
	for _, child := range e.Children {
		if child.XMLName.Local == tag {
			return strings.TrimSpace(child.Content)
		}
	}
	return ""
}

func (e Element) write(b *strings.Builder) {
	tag := e.XMLName.Local
	if len(e.Children) == 0 {
		text := strings.TrimSpace(e.Content)
		if text == "" {
			fmt.Fprintf(b, "<%s/>", tag)
			return
		}
		fmt.Fprintf(b, "<%s>%s</%s>", tag, XMLEscape(text), tag)
		return
	}
	fmt.Fprintf(b, "<%s>", tag)
	for _, child := range e.Children {
		child.write(b)
	}
	fmt.Fprintf(b, "</%s>", tag)
}

// RenderGetMeetings emits the per-secret getMeetings document from the
// filtered meeting elements. Empty input must be handled by the caller
// with the canned noMeetings body.
func RenderGetMeetings(meetings []Element) string {
	var b strings.Builder
	b.WriteString("<response>\r\n<returncode>SUCCESS</returncode>\r\n<meetings>\r\n")
	for _, meeting := range meetings {
		meeting.write(&b)
		b.WriteString("\r\n")
	}
	b.WriteString("</meetings>\r\n</response>")
	return b.String()
}

// RecordingInfo is the flattened view of one rendered record served by
// getRecordings.
type RecordingInfo struct {
	RecordID         string
	MeetingID        string
	Name             string
	IsBreakout       bool
	GLListed         bool
	Published        bool
	StartTime        string
	EndTime          string
	Participants     int
	RawSize          int64
	Origin           string
	OriginVersion    string
	OriginServerName string
	EndCallbackURL   string
	MeetingName      string
	VideoSize        int64
	VideoURL         string
	VideoLengthMin   int
}

// State returns the protocol state string for the record.
func (r RecordingInfo) State() string {
	if r.Published {
		return "published"
	}
	return "unpublished"
}

// RenderGetRecordings emits the getRecordings document for the given
// records. Empty input must be handled by the caller with the canned
// noRecordings body.
func RenderGetRecordings(records []RecordingInfo) string {
	var b strings.Builder
	b.WriteString("<response>\r\n<returncode>SUCCESS</returncode>\r\n<recordings>\r\n")
	for _, rec := range records {
		b.WriteString("<recording>\r\n")
		fmt.Fprintf(&b, "<recordID>%s</recordID>\r\n", XMLEscape(rec.RecordID))
		fmt.Fprintf(&b, "<meetingID>%s</meetingID>\r\n", XMLEscape(rec.MeetingID))
		fmt.Fprintf(&b, "<internalMeetingID>%s</internalMeetingID>\r\n", XMLEscape(rec.MeetingID))
		fmt.Fprintf(&b, "<name>%s</name>\r\n", XMLEscape(rec.Name))
		fmt.Fprintf(&b, "<isBreakout>%t</isBreakout>\r\n", rec.IsBreakout)
		fmt.Fprintf(&b, "<published>%t</published>\r\n", rec.Published)
		fmt.Fprintf(&b, "<state>%s</state>\r\n", rec.State())
		fmt.Fprintf(&b, "<startTime>%s</startTime>\r\n", XMLEscape(rec.StartTime))
		fmt.Fprintf(&b, "<endTime>%s</endTime>\r\n", XMLEscape(rec.EndTime))
		fmt.Fprintf(&b, "<participants>%d</participants>\r\n", rec.Participants)
		fmt.Fprintf(&b, "<rawSize>%d</rawSize>\r\n", rec.RawSize)
		b.WriteString("<metadata>\r\n")
		fmt.Fprintf(&b, "<isBreakout>%t</isBreakout>\r\n", rec.IsBreakout)
		fmt.Fprintf(&b, "<gl-listed>%t</gl-listed>\r\n", rec.GLListed)
		fmt.Fprintf(&b, "<meetingId>%s</meetingId>\r\n", XMLEscape(rec.MeetingID))
		fmt.Fprintf(&b, "<meetingName>%s</meetingName>\r\n", XMLEscape(rec.MeetingName))
		fmt.Fprintf(&b, "<bbb-origin>%s</bbb-origin>\r\n", XMLEscape(rec.Origin))
		fmt.Fprintf(&b, "<bbb-origin-version>%s</bbb-origin-version>\r\n", XMLEscape(rec.OriginVersion))
		fmt.Fprintf(&b, "<bbb-origin-server-name>%s</bbb-origin-server-name>\r\n", XMLEscape(rec.OriginServerName))
		fmt.Fprintf(&b, "<endCallbackUrl>%s</endCallbackUrl>\r\n", XMLEscape(rec.EndCallbackURL))
		b.WriteString("</metadata>\r\n")
		fmt.Fprintf(&b, "<size>%d</size>\r\n", rec.VideoSize)
		b.WriteString("<playback>\r\n<format>\r\n<type>video</type>\r\n")
		fmt.Fprintf(&b, "<url>%s</url>\r\n", XMLEscape(rec.VideoURL))
		fmt.Fprintf(&b, "<length>%d</length>\r\n", rec.VideoLengthMin)
		b.WriteString("</format>\r\n</playback>\r\n</recording>\r\n")
	}
	b.WriteString("</recordings>\r\n</response>")
	return b.String()
}
