package transport

import (
	"fmt"
	"regexp"
)

// Origin header names sent with every upload request.
const (
	OriginClientHeader = "AV-Origin-Client"
	OriginAppHeader    = "AV-Origin-App"
	OriginSDKHeader    = "AV-Origin-Sdk"
)

var (
	originNameRegexp    = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)
	originVersionRegexp = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){0,2}$`)
)

// Origin identifies the application or SDK issuing the upload, sent as an
// AV-Origin-* header with the value "name:version".
type Origin struct {
	Name    string
	Version string
}

// Validate ...
func (o Origin) Validate() error {
	if !originNameRegexp.MatchString(o.Name) {
		return fmt.Errorf("invalid origin name %q: should match %s", o.Name, originNameRegexp)
	}
	if !originVersionRegexp.MatchString(o.Version) {
		return fmt.Errorf("invalid origin version %q: should match %s", o.Version, originVersionRegexp)
	}
	return nil
}

// HeaderValue returns the serialized "name:version" form.
func (o Origin) HeaderValue() string {
	return fmt.Sprintf("%s:%s", o.Name, o.Version)
}
