// Package policy applies tenant parameter rules to create and join
// requests and validates rule values against per-parameter patterns.
package policy

import (
	"regexp"
)

// Value patterns shared across parameters.
var (
	booleanRegex       = regexp.MustCompile(`^(true|false)$`)
	numberRegex        = regexp.MustCompile(`^\d+$`)
	policyRegex        = regexp.MustCompile(`^(ALWAYS_ACCEPT|ALWAYS_DENY|ASK_MODERATOR)$`)
	colorRegex         = regexp.MustCompile(`^#[a-fA-F0-9]{6}$`)
	localeRegex        = regexp.MustCompile(`^[a-z]{2}$`)
	cameraRegex        = regexp.MustCompile(`^(low-u30|low-u25|low-u20|low-u15|low-u12|low-u8|low|medium|high|hd)$`)
	urlRegex           = regexp.MustCompile(`^https?://[\w.-]+(?:\.[\w.-]+)+[\w._~:/?#[\]@!$&'()*+,;=.%-]+$`)
	roleRegex          = regexp.MustCompile(`^(VIEWER|MODERATOR)$`)
	meetingLayoutRegex = regexp.MustCompile(`(CUSTOM_LAYOUT|SMART_LAYOUT|PRESENTATION_FOCUS|VIDEO_FOCUS|CAMERAS_ONLY|PARTICIPANTS_CHAT_ONLY|PRESENTATION_ONLY|MEDIA_ONLY)$`)
	audioBridgeRegex   = regexp.MustCompile(`^(sipjs|kurento|fullaudio)$`)
	anyRegex           = regexp.MustCompile(`.`)
)

// CreateParameters is the whitelist of rule-controllable create
// parameters with their value patterns.
var CreateParameters = map[string]*regexp.Regexp{
	"allowModsToUnmuteUsers":                   booleanRegex,
	"allowOverrideClientSettingsOnCreateCall":  booleanRegex,
	"allowPromoteGuestToModerator":             booleanRegex,
	"allowStartStopRecording":                  booleanRegex,
	"autoStartRecording":                       booleanRegex,
	"bannerColor":                              colorRegex,
	"bannerText":                               anyRegex,
	"clientSettingsOverride":                   anyRegex,
	"copyright":                                anyRegex,
	"disabledFeatures":                         anyRegex,
	"disabledFeaturesExclude":                  anyRegex,
	"duration":                                 numberRegex,
	"endWhenNoModerator":                       booleanRegex,
	"endWhenNoModeratorDelayInMinutes":         numberRegex,
	"firstName":                                anyRegex,
	"groups":                                   anyRegex,
	"guestPolicy":                              policyRegex,
	"lastName":                                 anyRegex,
	"learningDashboardCleanupDelayInMinutes":   numberRegex,
	"lockSettingsDisableCam":                   booleanRegex,
	"lockSettingsDisableMic":                   booleanRegex,
	"lockSettingsDisablePrivateChat":           booleanRegex,
	"lockSettingsDisablePublicChat":            booleanRegex,
	"lockSettingsDisableNotes":                 booleanRegex,
	"lockSettingsHideViewersCursor":            booleanRegex,
	"lockSettingsLockedLayout":                 booleanRegex,
	"lockSettingsLockOnJoin":                   booleanRegex,
	"lockSettingsLockOnJoinConfigurable":       booleanRegex,
	"loginURL":                                 urlRegex,
	"logo":                                     urlRegex,
	"logoutURL":                                urlRegex,
	"maxParticipants":                          numberRegex,
	"meetingCameraCap":                         numberRegex,
	"meetingExpireIfNoUserJoinedInMinutes":     numberRegex,
	"meetingExpireWhenLastUserLeftInMinutes":   numberRegex,
	"meetingKeepEvents":                        booleanRegex,
	"meetingLayout":                            meetingLayoutRegex,
	"meta_fullaudio-bridge":                    audioBridgeRegex,
	"moderatorOnlyMessage":                     anyRegex,
	"muteOnStart":                              booleanRegex,
	"notifyRecordingIsOn":                      booleanRegex,
	"pluginManifests":                          anyRegex,
	"preUploadedPresentation":                  urlRegex,
	"preUploadedPresentationName":              anyRegex,
	"preUploadedPresentationOverrideDefault":   booleanRegex,
	"presentationUploadExternalDescription":    anyRegex,
	"presentationUploadExternalUrl":            urlRegex,
	"record":                                   booleanRegex,
	"recordFullDurationMedia":                  booleanRegex,
	"webcamsOnlyForModerator":                  booleanRegex,
	"welcome":                                  anyRegex,
}

// JoinParameters is the whitelist of rule-controllable join parameters
// with their value patterns.
var JoinParameters = map[string]*regexp.Regexp{
	"errorRedirectUrl":          urlRegex,
	"excludeFromDashboard":      booleanRegex,
	"role":                      roleRegex,
	"webcamBackgroundURL":       urlRegex,

	"userdata-bbb_ask_for_feedback_on_logout":               booleanRegex,
	"userdata-bbb_auto_join_audio":                          booleanRegex,
	"userdata-bbb_auto_share_webcam":                        booleanRegex,
	"userdata-bbb_auto_swap_layout":                         booleanRegex,
	"userdata-bbb_client_title":                             anyRegex,
	"userdata-bbb_custom_style":                             anyRegex,
	"userdata-bbb_custom_style_url":                         urlRegex,
	"userdata-bbb_default_layout":                           meetingLayoutRegex,
	"userdata-bbb_display_branding_area":                    booleanRegex,
	"userdata-bbb_enable_screen_sharing":                    booleanRegex,
	"userdata-bbb_enable_video":                             booleanRegex,
	"userdata-bbb_force_listen_only":                        booleanRegex,
	"userdata-bbb_force_restore_presentation_on_new_events": booleanRegex,
	"userdata-bbb_fullaudio_bridge":                         booleanRegex,
	"userdata-bbb_hide_controls":                            booleanRegex,
	"userdata-bbb_hide_notifications":                       booleanRegex,
	"userdata-bbb_hide_presentation":                        booleanRegex,
	"userdata-bbb_hide_presentation_on_join":                booleanRegex,
	"userdata-bbb_listen_only_mode":                         booleanRegex,
	"userdata-bbb_mirror_own_webcam":                        booleanRegex,
	"userdata-bbb_multi_user_pen_only":                      booleanRegex,
	"userdata-bbb_multi_user_tools":                         anyRegex,
	"userdata-bbb_outside_toggle_recording":                 booleanRegex,
	"userdata-bbb_outside_toggle_self_voice":                booleanRegex,
	"userdata-bbb_override_default_locale":                  localeRegex,
	"userdata-bbb_prefer_dark_theme":                        booleanRegex,
	"userdata-bbb_preferred_camera_profile":                 cameraRegex,
	"userdata-bbb_presenter_tools":                          anyRegex,
	"userdata-bbb_record_video":                             booleanRegex,
	"userdata-bbb_shortcuts":                                anyRegex,
	"userdata-bbb_show_participants_on_login":               booleanRegex,
	"userdata-bbb_show_public_chat_on_login":                booleanRegex,
	"userdata-bbb_skip_check_audio":                         booleanRegex,
	"userdata-bbb_skip_check_audio_on_first_join":           booleanRegex,
	"userdata-bbb_skip_echotest_if_previous_device":         booleanRegex,
	"userdata-bbb_skip_video_preview":                       booleanRegex,
	"userdata-bbb_skip_video_preview_on_first_join":         booleanRegex,
}

// WhitelistFor returns the rule-controllable parameter set of an
// endpoint, or nil when no rules apply.
func WhitelistFor(endpoint string) map[string]*regexp.Regexp {
	switch endpoint {
	case "create":
		return CreateParameters
	case "join":
		return JoinParameters
	}
	return nil
}

// ValidateValue reports whether a rule value is acceptable for the
// named parameter on either endpoint. Unknown parameters are rejected.
func ValidateValue(parameter, value string) bool {
	if re, ok := CreateParameters[parameter]; ok {
		return re.MatchString(value)
	}
	if re, ok := JoinParameters[parameter]; ok {
		return re.MatchString(value)
	}
	return false
}
