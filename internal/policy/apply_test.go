package policy

import (
	"net/url"
	"strings"
	"testing"

	"github.com/DE-IBH/b3lb/internal/bbb"
	"github.com/DE-IBH/b3lb/internal/store"
)

func TestApplyRules(t *testing.T) {
	rules := []store.Parameter{
		{Parameter: "record", Mode: store.ParameterBlock},
		{Parameter: "maxParticipants", Mode: store.ParameterOverride, Value: "25"},
		{Parameter: "muteOnStart", Mode: store.ParameterSet, Value: "true"},
		// Not in any whitelist, must never apply.
		{Parameter: "checksum", Mode: store.ParameterOverride, Value: "forged"},
	}

	params := url.Values{}
	params.Set("record", "true")
	params.Set("maxParticipants", "500")
	params.Set("checksum", "abc")

	ApplyRules(params, rules, "create")

	if params.Has("record") {
		t.Fatalf("BLOCK rule did not drop record")
	}
	if got := params.Get("maxParticipants"); got != "25" {
		t.Fatalf("OVERRIDE gave %q, want 25", got)
	}
	if got := params.Get("muteOnStart"); got != "true" {
		t.Fatalf("SET did not fill missing value, got %q", got)
	}
	if got := params.Get("checksum"); got != "abc" {
		t.Fatalf("non-whitelisted parameter was modified: %q", got)
	}
}

func TestApplyRulesSetDoesNotOverride(t *testing.T) {
	params := url.Values{}
	params.Set("muteOnStart", "false")

	ApplyRules(params, []store.Parameter{
		{Parameter: "muteOnStart", Mode: store.ParameterSet, Value: "true"},
	}, "create")

	if got := params.Get("muteOnStart"); got != "false" {
		t.Fatalf("SET must keep the client value, got %q", got)
	}
}

func TestApplyRulesOverrideFillsMissing(t *testing.T) {
	params := url.Values{}
	ApplyRules(params, []store.Parameter{
		{Parameter: "role", Mode: store.ParameterOverride, Value: "VIEWER"},
	}, "join")

	if got := params.Get("role"); got != "VIEWER" {
		t.Fatalf("OVERRIDE must also set missing values, got %q", got)
	}
}

func TestApplyRulesUnknownEndpoint(t *testing.T) {
	params := url.Values{}
	params.Set("record", "true")
	ApplyRules(params, []store.Parameter{
		{Parameter: "record", Mode: store.ParameterBlock},
	}, "getMeetings")
	if !params.Has("record") {
		t.Fatalf("rules must not apply outside create/join")
	}
}

func TestValidateValue(t *testing.T) {
	tests := []struct {
		parameter string
		value     string
		want      bool
	}{
		{"record", "true", true},
		{"record", "yes", false},
		{"maxParticipants", "100", true},
		{"maxParticipants", "-1", false},
		{"guestPolicy", "ASK_MODERATOR", true},
		{"guestPolicy", "MAYBE", false},
		{"bannerColor", "#a1B2c3", true},
		{"bannerColor", "red", false},
		{"logo", "https://cdn.example.org/logo.png", true},
		{"logo", "ftp://cdn.example.org/logo.png", false},
		{"role", "MODERATOR", true},
		{"userdata-bbb_override_default_locale", "de", true},
		{"userdata-bbb_override_default_locale", "deu", false},
		{"noSuchParameter", "true", false},
	}
	for _, tt := range tests {
		if got := ValidateValue(tt.parameter, tt.value); got != tt.want {
			t.Errorf("ValidateValue(%q, %q) = %v, want %v", tt.parameter, tt.value, got, tt.want)
		}
	}
}

func recordingSecret(enabled bool) *store.Secret {
	return &store.Secret{
		Tenant:           store.Tenant{Slug: "GL", RecordingEnabled: enabled},
		RecordingEnabled: enabled,
	}
}

func TestApplyCreateExtrasRecordingDisabled(t *testing.T) {
	params := url.Values{}
	params.Set("record", "true")
	params.Set("dialNumber", "+49123")
	params.Set("voiceBridge", "70000")

	result := ApplyCreateExtras(params, CreateContext{
		Secret:        recordingSecret(false),
		Meeting:       &store.Meeting{ID: "room-1", Nonce: "n0nce"},
		Created:       true,
		Method:        "GET",
		APIBaseDomain: "bbb.example.org",
	})

	if result.NewRecordSet != nil {
		t.Fatalf("no record set may be opened with recording disabled")
	}
	for _, p := range []string{"record", "allowStartStopRecording", "autoStartRecording"} {
		if got := params.Get(p); got != "false" {
			t.Fatalf("%s = %q, want false", p, got)
		}
	}
	if params.Has("dialNumber") || params.Has("voiceBridge") {
		t.Fatalf("dial-in parameters must be stripped")
	}
	want := "https://bbb.example.org/b3lb/b/meeting/end?nonce=n0nce"
	if got := params.Get("meta_endCallbackUrl"); got != want {
		t.Fatalf("meta_endCallbackUrl = %q, want %q", got, want)
	}
}

func TestApplyCreateExtrasOpensRecordSet(t *testing.T) {
	secret := recordingSecret(true)
	params := url.Values{}
	params.Set("meta_bbb-recording-ready-url", "https://gl.example.org/ready")

	result := ApplyCreateExtras(params, CreateContext{
		Secret:        secret,
		Meeting:       &store.Meeting{ID: "room-1", Nonce: "n0nce", EndCallbackURL: "https://gl.example.org/end"},
		Created:       true,
		Method:        "GET",
		APIBaseDomain: "bbb.example.org",
		RecordMetaTag: "b3lb-recordset",
	})

	rs := result.NewRecordSet
	if rs == nil {
		t.Fatalf("expected a new record set")
	}
	if rs.MeetingID != "room-1" || rs.Nonce != "n0nce" {
		t.Fatalf("record set fields: %+v", rs)
	}
	if rs.RecordingReadyOriginURL != "https://gl.example.org/ready" {
		t.Fatalf("recording-ready origin not captured: %+v", rs)
	}
	if rs.MetaEndCallbackURL != "https://gl.example.org/end" {
		t.Fatalf("end callback origin not captured: %+v", rs)
	}
	if params.Has("meta_bbb-recording-ready-url") {
		t.Fatalf("origin recording-ready URL must not reach the node")
	}
	if got := params.Get("meta_b3lb-recordset"); got != "n0nce" {
		t.Fatalf("record set tag = %q, want the meeting nonce", got)
	}
}

func TestApplyCreateExtrasExistingMeeting(t *testing.T) {
	params := url.Values{}
	result := ApplyCreateExtras(params, CreateContext{
		Secret:        recordingSecret(true),
		Meeting:       &store.Meeting{ID: "room-1", Nonce: "n0nce"},
		Created:       false,
		Method:        "GET",
		APIBaseDomain: "bbb.example.org",
	})
	if result.NewRecordSet != nil {
		t.Fatalf("joining an existing meeting must not open a record set")
	}
}

func TestApplyCreateExtrasLogoInjection(t *testing.T) {
	asset := &store.Asset{Logo: &store.AssetFile{Blob: []byte("png"), Filename: "logo.png"}}

	params := url.Values{}
	ApplyCreateExtras(params, CreateContext{
		Secret:        recordingSecret(true),
		Asset:         asset,
		Meeting:       &store.Meeting{ID: "m", Nonce: "n"},
		Method:        "GET",
		APIBaseDomain: "bbb.example.org",
	})
	if got := params.Get("logo"); got != store.AssetLogoURL("bbb.example.org", "GL") {
		t.Fatalf("logo = %q", got)
	}

	params = url.Values{}
	params.Set("logo", "https://client.example.org/own.png")
	ApplyCreateExtras(params, CreateContext{
		Secret:        recordingSecret(true),
		Asset:         asset,
		Meeting:       &store.Meeting{ID: "m", Nonce: "n"},
		Method:        "GET",
		APIBaseDomain: "bbb.example.org",
	})
	if got := params.Get("logo"); got != "https://client.example.org/own.png" {
		t.Fatalf("client logo must win, got %q", got)
	}
}

func TestApplyCreateExtrasSlideInjection(t *testing.T) {
	small := &store.Asset{Slide: &store.AssetFile{Blob: []byte("slide-bytes"), Filename: "deck.pdf"}}

	result := ApplyCreateExtras(url.Values{}, CreateContext{
		Secret:        recordingSecret(true),
		Asset:         small,
		Meeting:       &store.Meeting{ID: "m", Nonce: "n"},
		Method:        "GET",
		APIBaseDomain: "bbb.example.org",
	})
	if !strings.Contains(result.Body, `<document name="deck.pdf">`) {
		t.Fatalf("small slide should be inlined, body=%q", result.Body)
	}

	big := &store.Asset{Slide: &store.AssetFile{
		Blob:     make([]byte, bbb.MaxSlideSize+1),
		Filename: "deck.pdf",
	}}
	result = ApplyCreateExtras(url.Values{}, CreateContext{
		Secret:        recordingSecret(true),
		Asset:         big,
		Meeting:       &store.Meeting{ID: "m", Nonce: "n"},
		Method:        "GET",
		APIBaseDomain: "bbb.example.org",
	})
	if !strings.Contains(result.Body, `url="`+store.AssetSlideURL("bbb.example.org", "GL")+`"`) {
		t.Fatalf("large slide should be referenced by URL, body=%q", result.Body)
	}

	// POST create requests carry a client body already.
	result = ApplyCreateExtras(url.Values{}, CreateContext{
		Secret:        recordingSecret(true),
		Asset:         small,
		Meeting:       &store.Meeting{ID: "m", Nonce: "n"},
		Method:        "POST",
		APIBaseDomain: "bbb.example.org",
	})
	if result.Body != "" {
		t.Fatalf("slides must not replace POST bodies")
	}

	// The sentinel filename disables injection.
	sentinel := &store.Asset{Slide: &store.AssetFile{Blob: []byte("x"), Filename: "no-slides"}}
	result = ApplyCreateExtras(url.Values{}, CreateContext{
		Secret:        recordingSecret(true),
		Asset:         sentinel,
		Meeting:       &store.Meeting{ID: "m", Nonce: "n"},
		Method:        "GET",
		APIBaseDomain: "bbb.example.org",
		NoSlidesText:  "no-slides",
	})
	if result.Body != "" {
		t.Fatalf("sentinel filename must disable slide injection")
	}
}

func TestApplyJoinExtras(t *testing.T) {
	secret := recordingSecret(true)
	asset := &store.Asset{CustomCSS: &store.AssetFile{Blob: []byte("css"), Filename: "style.css"}}

	params := url.Values{}
	ApplyJoinExtras(params, secret, asset, "bbb.example.org")
	if got := params.Get("userdata-bbb_custom_style_url"); got != store.AssetCSSURL("bbb.example.org", "GL") {
		t.Fatalf("custom style url = %q", got)
	}

	params = url.Values{}
	params.Set("userdata-bbb_custom_style_url", "https://client.example.org/own.css")
	ApplyJoinExtras(params, secret, asset, "bbb.example.org")
	if got := params.Get("userdata-bbb_custom_style_url"); got != "https://client.example.org/own.css" {
		t.Fatalf("client style must win, got %q", got)
	}

	ApplyJoinExtras(url.Values{}, secret, nil, "bbb.example.org")
}
