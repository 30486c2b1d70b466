package fanout

import (
	"strings"

	"github.com/pkg/errors"

	"reparto-backend/internal/changefeed"
)

// Kind is the entity type a subscription is scoped to.
type Kind string

const (
	KindOrder           Kind = "order"
	KindCourier         Kind = "courier"
	KindRestaurant      Kind = "restaurant"
	KindOrders          Kind = "orders"
	KindFleet           Kind = "fleet"
	KindSystemPanel     Kind = "panel:system"
	KindFleetPanel      Kind = "panel:fleet"
	KindRestaurantPanel Kind = "panel:restaurant"
	KindCourierPanel    Kind = "panel:courier"
)

// keyed kinds carry an entity id; longer prefixes first
var keyed = []Kind{KindRestaurantPanel, KindCourierPanel, KindOrder, KindCourier, KindRestaurant}

var global = []Kind{KindOrders, KindFleet, KindSystemPanel, KindFleetPanel}

// Scope is (entity type, entity id). Role-wide scopes have no id.
type Scope struct {
	Kind Kind
	ID   string
}

func (s Scope) String() string {
	if s.ID == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ":" + s.ID
}

func ParseScope(raw string) (Scope, error) {
	for _, k := range global {
		if raw == string(k) {
			return Scope{Kind: k}, nil
		}
	}
	for _, k := range keyed {
		prefix := string(k) + ":"
		if strings.HasPrefix(raw, prefix) {
			id := strings.TrimPrefix(raw, prefix)
			if id == "" || strings.Contains(id, ":") {
				break
			}
			return Scope{Kind: k, ID: id}, nil
		}
	}
	return Scope{}, errors.Errorf("unknown scope %q", raw)
}

// Route returns every scope a change event is relevant to. Resync events
// are not routed; the hub hands them to everyone.
func Route(ev changefeed.Event) []Scope {
	var out []Scope
	switch ev.Table {
	case changefeed.TableOrders:
		if id := ev.Field("id"); id != "" {
			out = append(out, Scope{KindOrder, id})
		}
		for _, r := range ev.Fields("restaurante_id") {
			out = append(out, Scope{KindRestaurant, r}, Scope{KindRestaurantPanel, r})
		}
		for _, c := range ev.Fields("repartidor_id") {
			out = append(out, Scope{KindCourier, c}, Scope{KindCourierPanel, c})
		}
		out = append(out, Scope{Kind: KindOrders}, Scope{Kind: KindSystemPanel}, Scope{Kind: KindFleetPanel})

	case changefeed.TableCouriers:
		if id := ev.Field("id"); id != "" {
			out = append(out, Scope{KindCourier, id}, Scope{KindCourierPanel, id})
		}
		out = append(out, Scope{Kind: KindFleet}, Scope{Kind: KindFleetPanel})

	case changefeed.TablePositions:
		if id := ev.Field("usuario_id"); id != "" {
			out = append(out, Scope{KindCourier, id})
		}
		out = append(out, Scope{Kind: KindFleet})
	}
	return out
}
