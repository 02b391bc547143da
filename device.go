package goIdentity

import "github.com/MrEthical07/goIdentity/internal"

const unknownCountry = "--"

// defaultDevices parses user agents locally and knows no countries.
type defaultDevices struct{}

func (defaultDevices) LookupCountry(string) string { return "" }

func (defaultDevices) ParseUserAgent(ua string) DeviceInfo {
	d := internal.ParseUserAgent(ua)
	return DeviceInfo{
		OSName:        d.OSName,
		OSVersion:     d.OSVersion,
		ClientType:    d.ClientType,
		ClientName:    d.ClientName,
		ClientVersion: d.ClientVersion,
		DeviceName:    d.DeviceName,
	}
}

// describeDevice resolves country and device for req, degrading empty
// values to "--" and "UNKNOWN".
func (e *Engine) describeDevice(req *Request) (string, DeviceInfo) {
	country := e.devices.LookupCountry(req.ip())
	if country == "" {
		country = unknownCountry
	}
	info := e.devices.ParseUserAgent(req.userAgent())
	for _, f := range []*string{&info.OSName, &info.OSVersion, &info.ClientType, &info.ClientName, &info.ClientVersion, &info.DeviceName} {
		if *f == "" {
			*f = internal.UnknownValue
		}
	}
	return country, info
}
