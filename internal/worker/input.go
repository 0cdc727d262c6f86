package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/fieldtrack/trackcheck/pkg/core"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidInput wraps validation failures of commands and requests.
var ErrInvalidInput = errors.New("invalid input")

var validate = validator.New()

func invalid(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed on %s", ErrInvalidInput, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

// SubjectInput registers a field employee. TrackingEnabled defaults to true.
type SubjectInput struct {
	ID              uint   `json:"id" validate:"required"`
	Name            string `json:"name" validate:"max=255"`
	TrackingEnabled *bool  `json:"trackingEnabled"`
}

// Subject converts the input to its core form.
func (in SubjectInput) Subject() core.Subject {
	enabled := true
	if in.TrackingEnabled != nil {
		enabled = *in.TrackingEnabled
	}
	return core.Subject{ID: in.ID, Name: in.Name, TrackingEnabled: enabled}
}

// PointInput is one reported fix.
type PointInput struct {
	SubjectID    uint      `json:"subjectId" validate:"required"`
	Time         time.Time `json:"time"`
	Latitude     float64   `json:"latitude" validate:"latitude"`
	Longitude    float64   `json:"longitude" validate:"longitude"`
	Type         string    `json:"type" validate:"omitempty,oneof=check_in check_out call_start call_end route_point"`
	AttendanceID *uint     `json:"attendanceId,omitempty"`
}

// Fix converts the input to its core form.
func (in PointInput) Fix() (core.Fix, error) {
	t, err := core.ParseTrackingType(in.Type)
	if err != nil {
		return core.Fix{}, err
	}
	return core.Fix{
		SubjectID:    in.SubjectID,
		AttendanceID: in.AttendanceID,
		Time:         in.Time.UTC(),
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		Type:         t,
	}, nil
}
