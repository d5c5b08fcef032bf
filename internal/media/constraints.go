package media

import "github.com/saturnino-fabrica-de-software/dermalens/internal/domain"

// FacingMode selects which camera to open on devices with more than one
type FacingMode string

const (
	FacingUser        FacingMode = "user"
	FacingEnvironment FacingMode = "environment"
)

// Constraints describes the video stream requested from a Source
type Constraints struct {
	FacingMode  FacingMode
	MinWidth    int
	MinHeight   int
	IdealWidth  int
	IdealHeight int
	Audio       bool
}

// ConstraintsFor returns the capture constraints for profile. Desktops film
// the user with the front camera; phones and tablets photograph the lesion
// with the rear camera at a higher resolution.
func ConstraintsFor(profile domain.DeviceProfile) Constraints {
	if profile.IsDesktop {
		return Constraints{
			FacingMode:  FacingUser,
			MinWidth:    640,
			MinHeight:   480,
			IdealWidth:  1280,
			IdealHeight: 720,
		}
	}

	return Constraints{
		FacingMode:  FacingEnvironment,
		MinWidth:    1280,
		MinHeight:   720,
		IdealWidth:  1920,
		IdealHeight: 1080,
	}
}
