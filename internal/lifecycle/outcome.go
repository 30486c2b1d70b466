package lifecycle

import (
	"github.com/pkg/errors"

	"reparto-backend/internal/models"
)

// Reason explains why a claim or transition did not apply.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonConflict           Reason = "conflict"
	ReasonNotClaimable       Reason = "not_claimable"
	ReasonCourierUnavailable Reason = "courier_unavailable"
	ReasonIllegalTransition  Reason = "illegal_transition"
	ReasonUnauthorized       Reason = "unauthorized"
	ReasonNotFound           Reason = "not_found"
	ReasonInvalid            Reason = "invalid_request"
)

// Outcome is the result of a claim, transition or create. Order holds the
// row as the caller should display it: the updated row on success, the
// current row after a rejection (nil when it does not exist or the actor
// may not see it).
type Outcome struct {
	Applied bool          `json:"applied"`
	Reason  Reason        `json:"reason,omitempty"`
	Order   *models.Order `json:"order,omitempty"`
}

func applied(o *models.Order) Outcome {
	return Outcome{Applied: true, Order: o}
}

func rejected(r Reason, o *models.Order) Outcome {
	return Outcome{Reason: r, Order: o}
}

// ErrForbidden is returned by reads the actor is not allowed to make.
var ErrForbidden = errors.New("forbidden")
