package session

import "strings"

// DeviceInfo carries the raw request attributes a session is bound to.
type DeviceInfo struct {
	UserAgent string
	IPAddress string
}

// DetectPlatform derives a coarse platform label from a user-agent string.
// Substring matching is deliberate; a full UA parser buys nothing here.
func DetectPlatform(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		return "iOS"
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "mac os"), strings.Contains(ua, "macintosh"):
		return "macOS"
	case strings.Contains(ua, "linux"):
		return "Linux"
	default:
		return "Unknown"
	}
}

// DetectBrowser derives a coarse browser label from a user-agent string.
func DetectBrowser(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "edg/"), strings.Contains(ua, "edge"):
		return "Edge"
	case strings.Contains(ua, "opr/"), strings.Contains(ua, "opera"):
		return "Opera"
	case strings.Contains(ua, "chrome"):
		return "Chrome"
	case strings.Contains(ua, "safari"):
		return "Safari"
	case strings.Contains(ua, "firefox"):
		return "Firefox"
	case strings.Contains(ua, "curl"), strings.Contains(ua, "wget"),
		strings.Contains(ua, "postman"):
		return "API Client"
	default:
		return "Unknown"
	}
}
