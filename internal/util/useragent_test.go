package util

import "testing"

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name    string
		ua      string
		device  string
		browser string
		os      string
	}{
		{
			name:    "desktop chrome on windows",
			ua:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			device:  "desktop",
			browser: "Chrome",
			os:      "Windows",
		},
		{
			name:    "iphone safari",
			ua:      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Version/17.0 Mobile/15E148 Safari/604.1",
			device:  "mobile",
			browser: "Safari",
			os:      "iOS",
		},
		{
			name:    "ipad classified as tablet",
			ua:      "Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X) AppleWebKit/605.1.15 Safari/604.1",
			device:  "tablet",
			browser: "Safari",
			os:      "iOS",
		},
		{
			name:    "empty user agent",
			ua:      "",
			device:  "unknown",
			browser: "unknown",
			os:      "unknown",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			info := ParseUserAgent(tc.ua)
			if info.DeviceType != tc.device {
				t.Fatalf("device = %q, want %q", info.DeviceType, tc.device)
			}
			if info.Browser != tc.browser {
				t.Fatalf("browser = %q, want %q", info.Browser, tc.browser)
			}
			if info.OS != tc.os {
				t.Fatalf("os = %q, want %q", info.OS, tc.os)
			}
		})
	}
}
