package bbb

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// MeetingCensus is the per-meeting slice of a node's getMeetings report.
type MeetingCensus struct {
	ParticipantCount      int
	ListenerCount         int
	VoiceParticipantCount int
	VideoCount            int
	ModeratorCount        int
	IsBreakout            bool
	Origin                string
	OriginServerName      string
}

// Census is one node's parsed getMeetings report: the meeting map plus
// the non-breakout totals used for the node load counters.
type Census struct {
	Meetings  map[string]MeetingCensus
	Running   int
	Attendees int
}

type censusDocument struct {
	ReturnCode string `xml:"returncode"`
	Error      *struct {
		Text string `xml:",chardata"`
	} `xml:"error"`
	Meetings []censusMeeting `xml:"meetings>meeting"`
}

type censusMeeting struct {
	MeetingID             string         `xml:"meetingID"`
	ParticipantCount      int            `xml:"participantCount"`
	ListenerCount         int            `xml:"listenerCount"`
	VoiceParticipantCount int            `xml:"voiceParticipantCount"`
	VideoCount            int            `xml:"videoCount"`
	ModeratorCount        int            `xml:"moderatorCount"`
	IsBreakout            string         `xml:"isBreakout"`
	Metadata              censusMetadata `xml:"metadata"`
}

type censusMetadata struct {
	Fields []censusField `xml:",any"`
}

type censusField struct {
	XMLName xml.Name
	Text    string `xml:",chardata"`
}

// ParseCensus parses a node's raw getMeetings XML. A FAILED returncode
// or an <error> element is reported as an error so the poller can mark
// the node.
func ParseCensus(raw string) (*Census, error) {
	var doc censusDocument
	if err := xml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("parse getMeetings response: %w", err)
	}
	if doc.Error != nil || doc.ReturnCode == "FAILED" {
		return nil, fmt.Errorf("getMeetings returncode FAILED")
	}

	census := &Census{Meetings: make(map[string]MeetingCensus, len(doc.Meetings))}
	for _, meeting := range doc.Meetings {
		if meeting.MeetingID == "" {
			continue
		}
		entry := MeetingCensus{
			ParticipantCount:      meeting.ParticipantCount,
			ListenerCount:         meeting.ListenerCount,
			VoiceParticipantCount: meeting.VoiceParticipantCount,
			VideoCount:            meeting.VideoCount,
			ModeratorCount:        meeting.ModeratorCount,
			IsBreakout:            meeting.IsBreakout == "true",
		}
		for _, field := range meeting.Metadata.Fields {
			switch field.XMLName.Local {
			case "bbb-origin":
				entry.Origin = strings.TrimSpace(field.Text)
			case "bbb-origin-server-name":
				entry.OriginServerName = strings.TrimSpace(field.Text)
			}
		}
		census.Meetings[meeting.MeetingID] = entry
		if !entry.IsBreakout {
			census.Running++
			census.Attendees += entry.ParticipantCount
		}
	}
	return census, nil
}

// ParseNodeLoad extracts the integer CPU load from the first line of a
// node's load endpoint body.
func ParseNodeLoad(body string) (int, error) {
	line := body
	if idx := strings.IndexByte(body, '\n'); idx >= 0 {
		line = body[:idx]
	} else {
		return 0, fmt.Errorf("load response has no terminated first line")
	}
	load, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("parse node load %q: %w", line, err)
	}
	return load, nil
}
