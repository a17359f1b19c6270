package device

import "errors"

var (
	ErrDeviceNotFound    = errors.New("device: not found")
	ErrParameterNotFound = errors.New("device: parameter not found")
	ErrScheduleNotFound  = errors.New("device: schedule not found")
	ErrInvalidWindow     = errors.New("device: invalid schedule window")
	ErrStoreClosed       = errors.New("device: store closed")
)
