package models

type Role string

const (
	RoleCustomer   Role = "cliente"
	RoleRestaurant Role = "restaurante"
	RoleCourier    Role = "repartidor"
	RoleDispatcher Role = "despachador"
	RoleAdmin      Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleRestaurant, RoleCourier, RoleDispatcher, RoleAdmin:
		return true
	}
	return false
}

// Operator reports whether the role sees every order and courier.
func (r Role) Operator() bool {
	return r == RoleDispatcher || r == RoleAdmin
}

// Actor is the authenticated identity passed into every claim, transition
// and report call. RestaurantID is set only for restaurant staff.
type Actor struct {
	ID           string `json:"user_id"`
	Role         Role   `json:"role"`
	RestaurantID string `json:"restaurant_id,omitempty"`
}
