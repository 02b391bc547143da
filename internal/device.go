package internal

import (
	"regexp"
	"strings"
)

// UnknownValue is reported for any user-agent attribute that cannot be
// recognised.
const UnknownValue = "UNKNOWN"

// Device is the parsed form of a user-agent string.
type Device struct {
	OSName        string
	OSVersion     string
	ClientType    string
	ClientName    string
	ClientVersion string
	DeviceName    string
}

var (
	osPatterns = []struct {
		name string
		re   *regexp.Regexp
	}{
		{"Windows", regexp.MustCompile(`Windows NT ([\d.]+)`)},
		{"iOS", regexp.MustCompile(`(?:iPhone|iPad|iPod).*? OS ([\d_]+)`)},
		{"Mac", regexp.MustCompile(`Mac OS X ([\d_.]+)`)},
		{"Android", regexp.MustCompile(`Android ([\d.]+)`)},
		{"Chrome OS", regexp.MustCompile(`CrOS \S+ ([\d.]+)`)},
		{"GNU/Linux", regexp.MustCompile(`Linux()`)},
	}
	clientPatterns = []struct {
		name string
		kind string
		re   *regexp.Regexp
	}{
		{"Microsoft Edge", "browser", regexp.MustCompile(`Edg(?:e|A|iOS)?/([\d.]+)`)},
		{"Opera", "browser", regexp.MustCompile(`OPR/([\d.]+)`)},
		{"Firefox", "browser", regexp.MustCompile(`(?:Firefox|FxiOS)/([\d.]+)`)},
		{"Chrome", "browser", regexp.MustCompile(`(?:Chrome|CriOS)/([\d.]+)`)},
		{"Safari", "browser", regexp.MustCompile(`Version/([\d.]+).*Safari/`)},
		{"curl", "library", regexp.MustCompile(`curl/([\d.]+)`)},
		{"Go-http-client", "library", regexp.MustCompile(`Go-http-client/([\d.]+)`)},
		{"Postman", "library", regexp.MustCompile(`PostmanRuntime/([\d.]+)`)},
	}
)

// ParseUserAgent recognises common operating systems, browsers and HTTP
// libraries. Unrecognised parts are reported as UnknownValue.
func ParseUserAgent(ua string) Device {
	d := Device{
		OSName:        UnknownValue,
		OSVersion:     UnknownValue,
		ClientType:    UnknownValue,
		ClientName:    UnknownValue,
		ClientVersion: UnknownValue,
		DeviceName:    UnknownValue,
	}
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return d
	}

	for _, p := range osPatterns {
		if m := p.re.FindStringSubmatch(ua); m != nil {
			d.OSName = p.name
			if len(m) > 1 && m[1] != "" {
				d.OSVersion = strings.ReplaceAll(m[1], "_", ".")
			}
			break
		}
	}
	for _, p := range clientPatterns {
		if m := p.re.FindStringSubmatch(ua); m != nil {
			d.ClientName = p.name
			d.ClientType = p.kind
			d.ClientVersion = m[1]
			break
		}
	}

	switch {
	case strings.Contains(ua, "iPad") || strings.Contains(ua, "Tablet"):
		d.DeviceName = "tablet"
	case strings.Contains(ua, "Mobile") || strings.Contains(ua, "iPhone"):
		d.DeviceName = "smartphone"
	case d.OSName == "Windows" || d.OSName == "Mac" || d.OSName == "GNU/Linux" || d.OSName == "Chrome OS":
		d.DeviceName = "desktop"
	}
	return d
}
