package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// Booking channels derived from the User-Agent
const (
	ChannelMobileApp = "mobile_app"
	ChannelWeb       = "web"
	ChannelAPI       = "api"
)

// DeviceInfo holds the parts of a User-Agent recorded in the booking audit log
type DeviceInfo struct {
	Channel    string `json:"channel"`     // mobile_app, web, api
	DeviceType string `json:"device_type"` // mobile, tablet, desktop, unknown
	OS         string `json:"os"`
	Browser    string `json:"browser"`
	IsBot      bool   `json:"is_bot"`
}

// HTTP client libraries used by the passenger and counter apps
var appClientMarkers = []string{"okhttp", "dart", "cfnetwork", "dalvik"}

var tabletMarkers = []string{"ipad", "tablet", "kindle", "nexus 7", "nexus 9", "nexus 10", "sm-t"}

// ParseUserAgent parses a User-Agent string into DeviceInfo
func ParseUserAgent(userAgent string) DeviceInfo {
	if userAgent == "" || userAgent == "Unknown" {
		return DeviceInfo{
			Channel:    ChannelAPI,
			DeviceType: "unknown",
			OS:         "Unknown",
			Browser:    "Unknown",
		}
	}

	parser := ua.New(userAgent)
	lower := strings.ToLower(userAgent)

	info := DeviceInfo{
		IsBot:   parser.Bot(),
		OS:      osName(parser),
		Browser: "Unknown",
	}
	if name, version := parser.Browser(); name != "" {
		info.Browser = strings.TrimSpace(name + " " + version)
	}

	// app clients run on phones even when the library string says nothing
	appClient := containsAny(lower, appClientMarkers)
	mobile := parser.Mobile() || appClient

	switch {
	case mobile && containsAny(lower, tabletMarkers):
		info.DeviceType = "tablet"
	case mobile:
		info.DeviceType = "mobile"
	default:
		info.DeviceType = "desktop"
	}

	switch {
	case appClient:
		info.Channel = ChannelMobileApp
	case strings.HasPrefix(lower, "mozilla/"):
		info.Channel = ChannelWeb
	default:
		info.Channel = ChannelAPI
	}

	return info
}

func osName(parser *ua.UserAgent) string {
	osInfo := parser.OSInfo()
	if osInfo.Name == "" {
		return "Unknown"
	}
	if osInfo.Version != "" {
		return osInfo.Name + " " + osInfo.Version
	}
	return osInfo.Name
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
