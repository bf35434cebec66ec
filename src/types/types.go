package types

import (
	"time"

	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"createdAt,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updatedAt,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type TicketStatus string

const (
	TICKET_VALID   TicketStatus = "valid"
	TICKET_REVOKED TicketStatus = "revoked"
)

type TicketTypeParams struct {
	Name           string  `json:"name" binding:"required"`
	Price          float64 `json:"price" binding:"min=0"`
	TotalAvailable uint    `json:"totalAvailable"`
}

type CreateEventRequestBody struct {
	Title       string             `json:"title" binding:"required"`
	Date        string             `json:"date" binding:"required,bookabledate" time_format:"2006-01-02 15:04:05 -07:00"`
	Venue       string             `json:"venue" binding:"required"`
	BannerImage *string            `json:"bannerImage,omitempty"`
	TicketTypes []TicketTypeParams `json:"ticketTypes,omitempty" binding:"omitempty,dive"`
}

type UpdateEventRequestBody struct {
	Title       *string            `json:"title,omitempty"`
	Date        *string            `json:"date,omitempty" binding:"omitempty,bookabledate" time_format:"2006-01-02 15:04:05 -07:00"`
	Venue       *string            `json:"venue,omitempty"`
	BannerImage *string            `json:"bannerImage,omitempty"`
	TicketTypes []TicketTypeParams `json:"ticketTypes,omitempty" binding:"omitempty,dive"`
}

// PurchaseLineItem carries an optional client-side price. The storefront cart
// echoes it for display but the server never trusts it; totals always come
// from the stored TicketType price.
type PurchaseLineItem struct {
	TicketType string  `json:"ticketType" binding:"required"`
	Quantity   uint    `json:"quantity" binding:"required,min=1,max=1000"`
	Price      float64 `json:"price,omitempty"`
}

type PurchaseTicketRequestBody struct {
	EventID    uint               `json:"eventId" binding:"required"`
	BuyerName  string             `json:"buyerName" binding:"required"`
	BuyerEmail string             `json:"buyerEmail,omitempty" binding:"omitempty,email"`
	BuyerPhone string             `json:"buyerPhone,omitempty"`
	Tickets    []PurchaseLineItem `json:"tickets" binding:"required,min=1,dive"`
}

type AdminLoginRequestBody struct {
	Secret string `json:"secret" binding:"required"`
}

type SimpleRequestParams struct {
	ID uint `uri:"id" binding:"required"`
}
