// Package bbb implements the BigBlueButton wire protocol pieces the
// balancer needs: request checksums, canned response bodies, census
// parsing and the XML documents served from the derived stores.
package bbb

// ContentTypeXML is the content type of every canned protocol body.
const ContentTypeXML = "text/xml"

const (
	MeetingNameLength = 256

	NonceLength   = 64
	NonceCharPool = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@*(-_)"

	SecretLength   = 42
	SecretCharPool = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	RecordProfileDescriptionLength = 255
	// RecordNameLength bounds the denormalized record display name
	// (meeting name + profile description + separator).
	RecordNameLength = RecordProfileDescriptionLength + MeetingNameLength + 3

	// MaxBase64SlideSize limits inline slide injection into create POST bodies.
	MaxBase64SlideSize = 1024000
	MaxSlideSize       = MaxBase64SlideSize * 3 / 4
)

// Canned protocol bodies. These are part of the wire contract and must
// stay byte-identical, CRLF line endings included.
const (
	ReturnVersion               = "<response>\r\n<returncode>SUCCESS</returncode>\r\n<version>2.0</version>\r\n<apiVersion>2.0</apiVersion>\r\n<bbbVersion/>\r\n</response>"
	ReturnCreateLimitReached    = "<response>\r\n<returncode>FAILED</returncode>\r\n<message>Meeting/Attendee limit reached.</message>\r\n</response>"
	ReturnCreateNoNodeAvailable = "<response>\r\n<returncode>FAILED</returncode>\r\n<message>No Node available.</message>\r\n</response>"
	ReturnIsMeetingRunningFalse = "<response>\r\n<returncode>SUCCESS</returncode>\r\n<running>false</running>\r\n</response>"
	ReturnGetMeetingInfoFalse   = "<response>\r\n<returncode>FAILED</returncode>\r\n<messageKey>notFound</messageKey>\r\n<message>A meeting with that ID does not exist</message>\r\n</response>"
	ReturnNoMeetings            = "<response>\r\n<returncode>SUCCESS</returncode>\r\n<meetings/>\r\n<messageKey>noMeetings</messageKey>\r\n<message>no meetings were found on this server</message>\r\n</response>"
	ReturnNoRecordings          = "<response>\r\n<returncode>SUCCESS</returncode>\r\n<recordings></recordings>\r\n<messageKey>noRecordings</messageKey>\r\n<message>There are no recordings for the meeting(s).</message>\r\n</response>"
	ReturnNoTextTracksJSON      = `{"response":{"returncode":"FAILED","messageKey":"noRecordings","message":"No recording found"}}`
	ReturnMissingMeetingID      = "<response>\r\n<returncode>FAILED</returncode>\r\n<messageKey>missingParamMeetingID</messageKey>\r\n<message>You must specify a meeting ID for the meeting.</message>\r\n</response>"
	ReturnMissingRecordID       = "<response>\r\n<returncode>FAILED</returncode>\r\n<messageKey>missingParamRecordID</messageKey>\r\n<message>You must specify one or more a record IDs.</message>\r\n</response>"
	ReturnMissingRecordPublish  = "<response>\r\n<returncode>FAILED</returncode>\r\n<messageKey>missingParamPublish</messageKey>\r\n<message>You must specify one a publish value true or false.</message>\r\n</response>"
	ReturnRecordDeleted         = "<response>\r\n<returncode>SUCCESS</returncode>\r\n<deleted>true</deleted>\r\n</response>"
	ReturnRecordUpdated         = "<response>\r\n<returncode>SUCCESS</returncode>\r\n<updated>true</updated>\r\n</response>"
	ReturnWrongMeetingNameSize  = "<response>\r\n<returncode>FAILED</returncode>\r\n<messageKey>sizeError</messageKey>\r\n<message>Meeting name must be between 2 and 256 characters</message>\r\n</response>"
)

// ReturnRecordPublished renders the publishRecordings success body with
// the echoed publish value.
func ReturnRecordPublished(publish string) string {
	return "<response>\r\n<returncode>SUCCESS</returncode>\r\n<published>" + publish + "</published>\r\n</response>"
}

// IsMeetingNameLengthFine reports whether a create meeting name is
// within protocol bounds.
func IsMeetingNameLengthFine(name string) bool {
	return 2 <= len(name) && len(name) <= MeetingNameLength
}
