package util

import "strings"

// ClientInfo is the device metadata recorded on a session at login time.
// Metadata carries free-form client hints (language, origin) that have no
// column of their own.
type ClientInfo struct {
	DeviceType string
	Browser    string
	OS         string
	UserAgent  string
	IPAddress  string
	Metadata   map[string]string
}

// ParseUserAgent does a coarse classification of a User-Agent string into
// device type, browser and OS. It is intentionally lossy; the raw string
// is stored alongside for anything that needs precision.
func ParseUserAgent(ua string) ClientInfo {
	info := ClientInfo{DeviceType: "unknown", Browser: "unknown", OS: "unknown", UserAgent: ua}
	if ua == "" {
		return info
	}
	lower := strings.ToLower(ua)

	switch {
	case strings.Contains(lower, "tablet") || strings.Contains(lower, "ipad"):
		info.DeviceType = "tablet"
	case strings.Contains(lower, "mobile") || strings.Contains(lower, "android") || strings.Contains(lower, "iphone"):
		info.DeviceType = "mobile"
	default:
		info.DeviceType = "desktop"
	}

	switch {
	case strings.Contains(lower, "edg"):
		info.Browser = "Edge"
	case strings.Contains(lower, "chrome"):
		info.Browser = "Chrome"
	case strings.Contains(lower, "firefox"):
		info.Browser = "Firefox"
	case strings.Contains(lower, "safari"):
		info.Browser = "Safari"
	}

	switch {
	case strings.Contains(lower, "windows"):
		info.OS = "Windows"
	case strings.Contains(lower, "android"):
		info.OS = "Android"
	case strings.Contains(lower, "iphone") || strings.Contains(lower, "ipad") || strings.Contains(lower, "ios"):
		info.OS = "iOS"
	case strings.Contains(lower, "mac"):
		info.OS = "macOS"
	case strings.Contains(lower, "linux"):
		info.OS = "Linux"
	}
	return info
}
