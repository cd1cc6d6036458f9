package errs

import (
	"errors"
	"net/http"
)

// Kinds. Every domain error wraps exactly one of these.
var (
	ErrValidation      = errors.New("validation")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUpstream        = errors.New("upstream")
	ErrUnavailable     = errors.New("unavailable")
)

// Error is a coded domain error whose Msg is safe to show to clients.
type Error struct {
	Kind error
	Code string
	Msg  string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Msg
	}
	return e.Code + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Kind }

func newErr(kind error, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

var (
	ErrInternal             = newErr(nil, "E0000", "Internal server error")
	ErrRequiredRegistration = newErr(ErrValidation, "E0001", "Password and registration number are required")
	ErrRequiredCredentials  = newErr(ErrValidation, "E0002", "Email or RegNo and password are required")
	ErrInvalidCredentials   = newErr(ErrUnauthenticated, "E0003", "Invalid credentials")
	ErrRegNoNotAuthorized   = newErr(ErrForbidden, "E0004", "Registration Number not authorized")
	ErrAlreadyRegistered    = newErr(ErrValidation, "E0005", "User already registered")
	ErrPasswordTooShort     = newErr(ErrValidation, "E0006", "Password must be at least 8 characters")
	ErrRegNoImmutable       = newErr(ErrValidation, "E0007", "Registration Number cannot be changed")
	ErrEmailInUse           = newErr(ErrConflict, "E0008", "Email already in use")
	ErrRegNoInUse           = newErr(ErrConflict, "E0009", "RegNo already in use")
	ErrUserExists           = newErr(ErrConflict, "E0010", "User already exists (email or regNo)")
	ErrUserNotFound         = newErr(ErrNotFound, "E0011", "User not found")
	ErrUsersRequired        = newErr(ErrValidation, "E0012", "Users list is required")
	ErrInvalidProctorID     = newErr(ErrValidation, "E0013", "Invalid proctorId")
	ErrFacultyProctorID     = newErr(ErrValidation, "E0014", "Faculty cannot assign proctorId explicitly")
	ErrInvalidProctor       = newErr(ErrValidation, "E0015", "Invalid proctor")
	ErrUserIDRequired       = newErr(ErrValidation, "E0016", "userId is required")
	ErrNoToken              = newErr(ErrUnauthenticated, "E0017", "No token provided")
	ErrInvalidToken         = newErr(ErrUnauthenticated, "E0018", "Invalid token")
	ErrSessionExpired       = newErr(ErrUnauthenticated, "E0019", "Session expired")
	ErrForbiddenRole        = newErr(ErrForbidden, "E0020", "Forbidden")
	ErrInvalidOTP           = newErr(ErrValidation, "E0021", "Invalid OTP")
	ErrInvalidResetToken    = newErr(ErrValidation, "E0022", "Reset token is invalid or has expired")
	ErrSamePassword         = newErr(ErrValidation, "E0023", "New password must be different from the old one")
	ErrCannotDeleteSelf     = newErr(ErrValidation, "E0024", "You cannot delete your own account")
	ErrAttendanceExists     = newErr(ErrConflict, "E0030", "Attendance already recorded for this date")
	ErrAttendanceNotFound   = newErr(ErrNotFound, "E0031", "Attendance not found")
	ErrAttendanceFields     = newErr(ErrValidation, "E0032", "All fields are required")
	ErrInvalidStatus        = newErr(ErrValidation, "E0033", "Invalid attendance status")
	ErrInvalidDate          = newErr(ErrValidation, "E0034", "Invalid date")
	ErrLeaveNotFound        = newErr(ErrNotFound, "E0040", "Leave not found")
	ErrLeaveNotPending      = newErr(ErrConflict, "E0041", "Only pending leaves can be modified")
	ErrLeaveFields          = newErr(ErrValidation, "E0042", "All fields are required")
	ErrLeaveType            = newErr(ErrValidation, "E0043", "Invalid leave type")
	ErrLeaveRange           = newErr(ErrValidation, "E0044", "fromDate must not be after toDate")
	ErrScheduleNotFound     = newErr(ErrNotFound, "E0050", "Schedule not found")
	ErrScheduleFields       = newErr(ErrValidation, "E0051", "All fields are required")
	ErrSlotFields           = newErr(ErrValidation, "E0052", "All slot fields are required")
	ErrSlotTime             = newErr(ErrValidation, "E0053", "Invalid time format in slots")
	ErrScheduleExists       = newErr(ErrConflict, "E0054", "Schedule already exists for this semester, section, year and batch")
	ErrHolidayNotFound      = newErr(ErrNotFound, "E0060", "Holiday not found")
	ErrHolidayFields        = newErr(ErrValidation, "E0061", "Title and date are required")
	ErrHolidayExists        = newErr(ErrConflict, "E0062", "Holiday already exists on this date")
	ErrAnnouncementNotFound = newErr(ErrNotFound, "E0070", "Announcement not found")
	ErrAnnouncementFields   = newErr(ErrValidation, "E0071", "Title and content are required")
	ErrMessageNotFound      = newErr(ErrNotFound, "E0080", "Message not found")
	ErrMessageEmpty         = newErr(ErrValidation, "E0081", "Message content cannot be empty")
	ErrMessageSelf          = newErr(ErrValidation, "E0082", "Cannot send message to yourself")
	ErrRecipientNotFound    = newErr(ErrNotFound, "E0083", "Recipient not found")
	ErrImageStorageDisabled = newErr(ErrUnavailable, "E0090", "image storage not configured")
	ErrImageUpload          = newErr(ErrUpstream, "E0091", "image upload failed")
	ErrFaceService          = newErr(ErrUpstream, "E0092", "face service request failed")
	ErrQueue                = newErr(ErrUnavailable, "E0093", "queue error")
	ErrRateLimited          = newErr(nil, "E0094", "rate limit")
	ErrImageRequired        = newErr(ErrValidation, "E0095", "imageUrl or image is required")
)

// Invalid builds a validation error with a caller-supplied message.
func Invalid(msg string) error {
	return &Error{Kind: ErrValidation, Msg: msg}
}

// Forbidden builds a forbidden error with a caller-supplied message.
func Forbidden(msg string) error {
	return &Error{Kind: ErrForbidden, Msg: msg}
}

// Status maps err to an HTTP status and the message clients may see.
// Unclassified errors become 500 with a generic message.
func Status(err error) (int, string) {
	var de *Error
	domain := errors.As(err, &de)
	msg := func(fallback string) string {
		if domain {
			return de.Msg
		}
		return fallback
	}
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, msg(ErrRateLimited.Msg)
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, msg("Invalid request")
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, msg("Unauthorized")
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, msg("Forbidden")
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, msg("Resource not found")
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, msg("Resource already exists")
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway, msg("Upstream service failed")
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, msg("Service unavailable")
	}
	return http.StatusInternalServerError, ErrInternal.Msg
}
