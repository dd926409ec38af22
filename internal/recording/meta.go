package recording

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/DE-IBH/b3lb/internal/store"
)

// Meta carries the fields read from the recorder's metadata.xml.
type Meta struct {
	BBBOrigin           string
	BBBOriginVersion    string
	BBBOriginServerName string
	GLListed            bool
	IsBreakout          bool
	MeetingName         string
	StartTime           string
	EndTime             string
	Participants        int
}

type metaDocument struct {
	XMLName xml.Name `xml:"recording"`
	Meeting struct {
		Name string `xml:"name,attr"`
	} `xml:"meeting"`
	Meta struct {
		BBBOrigin           string `xml:"bbb-origin"`
		BBBOriginVersion    string `xml:"bbb-origin-version"`
		BBBOriginServerName string `xml:"bbb-origin-server-name"`
		GLListed            string `xml:"gl-listed"`
		IsBreakout          string `xml:"isBreakout"`
	} `xml:"meta"`
	StartTime    string `xml:"start_time"`
	EndTime      string `xml:"end_time"`
	Participants string `xml:"participants"`
}

// ParseMeta decodes a metadata.xml document. Participants defaults to 1
// when absent or unparsable.
func ParseMeta(raw []byte) (*Meta, error) {
	var doc metaDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse recording meta: %w", err)
	}

	participants := 1
	if doc.Participants != "" {
		if n, err := strconv.Atoi(doc.Participants); err == nil {
			participants = n
		}
	}

	return &Meta{
		BBBOrigin:           doc.Meta.BBBOrigin,
		BBBOriginVersion:    doc.Meta.BBBOriginVersion,
		BBBOriginServerName: doc.Meta.BBBOriginServerName,
		GLListed:            doc.Meta.GLListed == "true",
		IsBreakout:          doc.Meta.IsBreakout == "true",
		MeetingName:         doc.Meeting.Name,
		StartTime:           doc.StartTime,
		EndTime:             doc.EndTime,
		Participants:        participants,
	}, nil
}

// Apply copies the parsed fields onto a record set.
func (m *Meta) Apply(rs *store.RecordSet) {
	rs.MetaOrigin = m.BBBOrigin
	rs.MetaOriginVersion = m.BBBOriginVersion
	rs.MetaOriginServerName = m.BBBOriginServerName
	rs.MetaGLListed = m.GLListed
	rs.MetaIsBreakout = m.IsBreakout
	rs.MetaMeetingName = m.MeetingName
	rs.MetaStartTime = m.StartTime
	rs.MetaEndTime = m.EndTime
	rs.MetaParticipants = m.Participants
}
