package security

import (
	"strings"

	"github.com/mssola/useragent"
)

const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// ClientFingerprint is a display-only summary of a user agent. It must never
// feed an authorization decision: the header is client controlled.
type ClientFingerprint struct {
	Browser  string
	OS       string
	Device   string
	IsMobile bool
}

func ParseUserAgent(raw string) ClientFingerprint {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ClientFingerprint{Browser: "Unknown", OS: "Unknown", Device: DeviceUnknown}
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	browser := strings.TrimSpace(name + " " + majorVersion(version))
	if browser == "" {
		browser = "Unknown"
	}
	os := ua.OS()
	if os == "" {
		os = "Unknown"
	}
	fp := ClientFingerprint{Browser: browser, OS: os, IsMobile: ua.Mobile()}
	switch {
	case ua.Bot():
		fp.Device = DeviceBot
	case isTablet(ua):
		fp.Device = DeviceTablet
	case fp.IsMobile:
		fp.Device = DeviceMobile
	default:
		fp.Device = DeviceDesktop
	}
	return fp
}

func isTablet(ua *useragent.UserAgent) bool {
	platform := strings.ToLower(ua.Platform())
	if strings.Contains(platform, "ipad") {
		return true
	}
	return strings.Contains(strings.ToLower(ua.OS()), "android") && !ua.Mobile()
}

func majorVersion(v string) string {
	if i := strings.IndexByte(v, '.'); i > 0 {
		return v[:i]
	}
	return v
}
