package models

import (
	"etix/src/types"
	"time"
)

type TicketType struct {
	ID             uint    `gorm:"primarykey" json:"id"`
	EventID        uint    `gorm:"index:idx_ticket_types_event_name,unique" json:"-"`
	Name           string  `gorm:"index:idx_ticket_types_event_name,unique" json:"name"`
	Price          float64 `json:"price"`
	TotalAvailable uint    `json:"totalAvailable"`
	Sold           uint    `gorm:"default:0" json:"sold"`

	types.Timestamps
}

func (t *TicketType) Remaining() uint {
	if t.Sold > t.TotalAvailable {
		return 0
	}
	return t.TotalAvailable - t.Sold
}

type Event struct {
	ID          uint         `gorm:"primarykey" json:"id"`
	Title       string       `json:"title"`
	Slug        string       `json:"slug,omitempty"`
	Date        time.Time    `json:"date"`
	Venue       string       `json:"venue"`
	BannerImage *string      `json:"bannerImage,omitempty"`
	TicketTypes []TicketType `json:"ticketTypes"`

	types.Timestamps
}

func (e *Event) TicketTypeByName(name string) *TicketType {
	for i := range e.TicketTypes {
		if e.TicketTypes[i].Name == name {
			return &e.TicketTypes[i]
		}
	}
	return nil
}

// Reserve applies a purchase request against the event's loaded inventory.
// Every line item is validated before any counter moves, so a request where
// one item cannot be satisfied leaves all counters untouched. The caller must
// hold the event's row lock for the duration of the surrounding transaction.
func (e *Event) Reserve(items []types.PurchaseLineItem) ([]TicketLineItem, float64, error) {
	resolved := make([]*TicketType, len(items))
	wanted := make(map[uint]uint, len(items))
	for i, item := range items {
		tt := e.TicketTypeByName(item.TicketType)
		if tt == nil {
			return nil, 0, &types.InvalidTicketTypeError{Name: item.TicketType}
		}
		resolved[i] = tt
		// aggregate per type so a request listing the same type twice
		// cannot slip past the availability check
		wanted[tt.ID] += item.Quantity
	}
	for _, tt := range resolved {
		// compare against Remaining rather than adding to Sold: the sum
		// would wrap for absurd quantities and let the check pass
		if wanted[tt.ID] > tt.Remaining() {
			return nil, 0, &types.SoldOutError{Name: tt.Name}
		}
	}
	var total float64
	lineItems := make([]TicketLineItem, 0, len(items))
	for i, item := range items {
		tt := resolved[i]
		tt.Sold += item.Quantity
		total += tt.Price * float64(item.Quantity)
		lineItems = append(lineItems, TicketLineItem{
			TicketType: tt.Name,
			Quantity:   item.Quantity,
			Price:      tt.Price,
		})
	}
	return lineItems, total, nil
}
