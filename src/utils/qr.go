package utils

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/yeqown/go-qrcode"
)

// TicketCodePayload is the JSON embedded in a ticket's QR image. Door staff
// scan it and look the ticket up by id.
type TicketCodePayload struct {
	TicketID uint `json:"ticketId"`
}

func EncodeTicketPayload(ticketID uint) (string, error) {
	payload := TicketCodePayload{TicketID: ticketID}
	raw, err := json.Marshal(&payload)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func DecodeTicketPayload(raw string) (*TicketCodePayload, error) {
	var payload TicketCodePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// TicketCodeDataURL renders the QR image for a ticket and returns it as a
// base64 data URL ready for an <img> tag.
func TicketCodeDataURL(ticketID uint) (string, error) {
	rawText, err := EncodeTicketPayload(ticketID)
	if err != nil {
		return "", err
	}
	qrc, err := qrcode.New(rawText)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := qrc.SaveTo(&buf); err != nil {
		return "", err
	}
	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
	return fmt.Sprintf("data:image/jpeg;base64,%s", encoded), nil
}
