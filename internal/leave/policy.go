package leave

import (
	"attendly/internal/errs"
	"attendly/internal/model"
)

// Action is something a user may attempt on a leave request.
type Action string

const (
	ActionView   Action = "view"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionReview Action = "review"
)

var (
	errNotOwner   = errs.Forbidden("You can only modify your own leave requests")
	errSelfReview = errs.Forbidden("You cannot review your own leave request")
	errNotProctor = errs.Forbidden("Only an admin or the student's proctor can review this leave")
	errNoAccess   = errs.Forbidden("You do not have access to this leave")
)

// Authorize is the single permission gate for leave requests. ownerProctorID is the proctor
// of the leave's owner, or empty when the owner has none.
func Authorize(action Action, actor *model.User, l *model.Leave, ownerProctorID string) error {
	owner := actor.ID == l.UserID
	admin := actor.Role == model.RoleAdmin
	proctoring := actor.Role == model.RoleFaculty && ownerProctorID != "" && ownerProctorID == actor.ID
	pending := l.Status == model.LeavePending

	switch action {
	case ActionView:
		if owner || admin || proctoring {
			return nil
		}
		return errNoAccess
	case ActionEdit:
		if !owner {
			return errNotOwner
		}
	case ActionDelete:
		if admin {
			return nil
		}
		if !owner {
			return errNotOwner
		}
	case ActionReview:
		if owner {
			return errSelfReview
		}
		if !admin && !proctoring {
			return errNotProctor
		}
	default:
		return errs.ErrForbiddenRole
	}
	if !pending {
		return errs.ErrLeaveNotPending
	}
	return nil
}
