package models

import "etix/src/types"

// TicketLineItem snapshots the unit price at purchase time. Later price edits
// on the event never alter an issued ticket's items or total.
type TicketLineItem struct {
	ID         uint    `gorm:"primarykey" json:"-"`
	TicketID   uint    `json:"-"`
	TicketType string  `json:"ticketType"`
	Quantity   uint    `json:"quantity"`
	Price      float64 `json:"price"`
}

// Ticket deliberately has no Event association: tickets outlive their event
// as historical records, so EventID may point at a deleted row.
type Ticket struct {
	ID          uint               `gorm:"primarykey" json:"id"`
	BuyerName   string             `json:"buyerName"`
	BuyerEmail  string             `json:"buyerEmail,omitempty"`
	BuyerPhone  string             `json:"buyerPhone,omitempty"`
	EventID     uint               `json:"eventId"`
	Items       []TicketLineItem   `gorm:"foreignKey:TicketID" json:"ticketsPurchased"`
	TotalAmount float64            `json:"totalAmount"`
	QRCode      string             `gorm:"column:qr_code;type:text" json:"qrCode,omitempty"`
	Status      types.TicketStatus `gorm:"default:'valid'" json:"status"`

	types.Timestamps
}
