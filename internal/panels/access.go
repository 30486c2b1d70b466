package panels

import "reparto-backend/internal/models"

// CanViewSystem covers the system, fleet and leaderboard panels.
func CanViewSystem(actor models.Actor) bool {
	return actor.Role.Operator()
}

func CanViewRestaurant(actor models.Actor, restaurantID string) bool {
	if actor.Role.Operator() {
		return true
	}
	return actor.Role == models.RoleRestaurant && actor.RestaurantID != "" && actor.RestaurantID == restaurantID
}

func CanViewCourier(actor models.Actor, courierID string) bool {
	if actor.Role.Operator() {
		return true
	}
	return actor.Role == models.RoleCourier && actor.ID == courierID
}
