// Package device classifies the running client from its user agent and
// camera availability. Classification drives the capture mode: desktops use
// automatic face detection, phones and tablets use a manual shutter.
package device

import (
	"regexp"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/domain"
)

// CameraProbe reports whether a video input can be requested at all
type CameraProbe interface {
	HasVideoInput() bool
}

// ProbeFunc adapts a function to CameraProbe
type ProbeFunc func() bool

func (f ProbeFunc) HasVideoInput() bool {
	return f()
}

var (
	mobilePattern  = regexp.MustCompile(`(?i)Android|webOS|iPhone|iPod|BlackBerry|IEMobile|Opera Mini`)
	tabletPattern  = regexp.MustCompile(`(?i)iPad|Tablet|PlayBook|Silk`)
	androidPattern = regexp.MustCompile(`(?i)Android`)
	mobileToken    = regexp.MustCompile(`(?i)Mobile`)
	iosPattern     = regexp.MustCompile(`(?i)iPad|iPhone|iPod`)
)

// Detect classifies userAgent. It never fails: a nil probe or an empty user
// agent yields a desktop profile without camera support.
func Detect(userAgent string, probe CameraProbe) domain.DeviceProfile {
	isAndroid := androidPattern.MatchString(userAgent)

	// Android tablets omit the "Mobile" token
	isTablet := tabletPattern.MatchString(userAgent) ||
		(isAndroid && !mobileToken.MatchString(userAgent))
	isMobile := !isTablet && mobilePattern.MatchString(userAgent)

	return domain.DeviceProfile{
		IsMobile:       isMobile,
		IsTablet:       isTablet,
		IsDesktop:      !isMobile && !isTablet,
		IsIOS:          iosPattern.MatchString(userAgent),
		IsAndroid:      isAndroid,
		SupportsCamera: probe != nil && probe.HasVideoInput(),
	}
}
