package policy

import (
	"encoding/base64"
	"fmt"
	"net/url"

	"github.com/DE-IBH/b3lb/internal/bbb"
	"github.com/DE-IBH/b3lb/internal/store"
)

// ApplyRules runs the tenant's parameter rules over a request's
// parameter map. Only rules naming a parameter in the endpoint's
// whitelist apply: BLOCK drops the client value, OVERRIDE always wins,
// SET fills in a missing value.
func ApplyRules(params url.Values, rules []store.Parameter, endpoint string) {
	whitelist := WhitelistFor(endpoint)
	if whitelist == nil {
		return
	}
	for _, rule := range rules {
		if _, ok := whitelist[rule.Parameter]; !ok {
			continue
		}
		if params.Has(rule.Parameter) {
			switch rule.Mode {
			case store.ParameterBlock:
				params.Del(rule.Parameter)
			case store.ParameterOverride:
				params.Set(rule.Parameter, rule.Value)
			}
		} else if rule.Mode == store.ParameterSet || rule.Mode == store.ParameterOverride {
			params.Set(rule.Parameter, rule.Value)
		}
	}
}

// CreateContext carries everything the create-endpoint rewrite needs.
type CreateContext struct {
	Secret        *store.Secret
	Asset         *store.Asset
	Meeting       *store.Meeting
	Created       bool
	Method        string
	APIBaseDomain string
	RecordMetaTag string
	NoSlidesText  string
}

// CreateResult reports the side effects the caller must carry out.
type CreateResult struct {
	// Body replaces the forwarded request body when slide injection
	// synthesized a presentation module document.
	Body string
	// NewRecordSet is non-nil when a record set must be opened for the
	// freshly created meeting.
	NewRecordSet *store.RecordSet
}

// ApplyCreateExtras applies the create-only rewrites after the tenant
// rules ran: dial-in parameters are stripped, tenant logo and slide
// assets injected, recording enabled or forced off, and the end
// callback redirected through the balancer.
func ApplyCreateExtras(params url.Values, ctx CreateContext) CreateResult {
	var result CreateResult

	params.Del("dialNumber")
	params.Del("voiceBridge")

	if ctx.Asset != nil && ctx.Asset.Logo != nil && !params.Has("logo") {
		params.Set("logo", store.AssetLogoURL(ctx.APIBaseDomain, ctx.Secret.Tenant.Slug))
	}

	if ctx.Method == "GET" && ctx.Asset != nil && ctx.Asset.Slide != nil {
		if body := slideModuleBody(ctx.Asset.Slide, ctx.APIBaseDomain, ctx.Secret.Tenant.Slug, ctx.NoSlidesText); body != "" {
			result.Body = body
		}
	}

	if ctx.Secret.IsRecordEnabled() {
		if ctx.Created {
			readyURL := params.Get("meta_bbb-recording-ready-url")
			params.Del("meta_bbb-recording-ready-url")
			result.NewRecordSet = &store.RecordSet{
				SecretUUID:              ctx.Secret.UUID,
				MeetingID:               ctx.Meeting.ID,
				MetaMeetingID:           ctx.Meeting.ID,
				RecordingReadyOriginURL: readyURL,
				MetaEndCallbackURL:      ctx.Meeting.EndCallbackURL,
				Nonce:                   ctx.Meeting.Nonce,
			}
			params.Set("meta_"+ctx.RecordMetaTag, ctx.Meeting.Nonce)
		}
	} else {
		for _, param := range []string{"record", "allowStartStopRecording", "autoStartRecording"} {
			params.Set(param, "false")
		}
	}

	params.Set("meta_endCallbackUrl",
		fmt.Sprintf("https://%s/b3lb/b/meeting/end?nonce=%s", ctx.APIBaseDomain, ctx.Meeting.Nonce))

	return result
}

// ApplyJoinExtras injects the tenant's custom style sheet when one is
// stored and the client did not bring its own.
func ApplyJoinExtras(params url.Values, secret *store.Secret, asset *store.Asset, apiBaseDomain string) {
	if asset != nil && asset.CustomCSS != nil && !params.Has("userdata-bbb_custom_style_url") {
		params.Set("userdata-bbb_custom_style_url", store.AssetCSSURL(apiBaseDomain, secret.Tenant.Slug))
	}
}

// slideModuleBody synthesizes the presentation module document carrying
// the tenant's default slide. Small slides are inlined base64, larger
// ones referenced by URL, and oversized ones skipped entirely. The
// sentinel filename disables injection.
func slideModuleBody(slide *store.AssetFile, apiBaseDomain, tenantSlug, noSlidesText string) string {
	if noSlidesText != "" && slide.Filename == noSlidesText {
		return ""
	}
	if len(slide.Blob) > 0 && len(slide.Blob) <= bbb.MaxSlideSize {
		encoded := base64.StdEncoding.EncodeToString(slide.Blob)
		if len(encoded) <= bbb.MaxBase64SlideSize {
			return fmt.Sprintf(
				"<modules><module name=\"presentation\"><document name=\"%s\">%s</document></module></modules>",
				bbb.XMLEscape(slide.Filename), encoded)
		}
	}
	return fmt.Sprintf(
		"<modules><module name=\"presentation\"><document url=\"%s\" filename=\"%s\"></document></module></modules>",
		store.AssetSlideURL(apiBaseDomain, tenantSlug), bbb.XMLEscape(slide.Filename))
}
