package utils

import (
	"errors"
	"etix/src/config"
	"etix/src/db"
	"etix/src/lib"
	"etix/src/models"
	"etix/src/types"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func ListEvents() ([]models.Event, error) {
	db := db.GetDb()
	var events []models.Event
	if err := db.
		Model(&models.Event{}).
		Preload("TicketTypes").
		Order("created_at asc").
		Find(&events).
		Error; err != nil {
		log.Printf("Could not retrieve events: %s\n", err.Error())
		return nil, err
	}
	return events, nil
}

func GetEvent(id uint) (*models.Event, error) {
	db := db.GetDb()
	var event models.Event
	if err := db.
		Model(&models.Event{}).
		Preload("TicketTypes").
		Where(&models.Event{ID: id}).
		First(&event).
		Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

func validateTicketTypeParams(params []types.TicketTypeParams) error {
	seen := map[string]bool{}
	for _, p := range params {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return &types.ValidationError{Reason: "ticket type name must not be empty"}
		}
		if seen[name] {
			return &types.ValidationError{Reason: fmt.Sprintf("duplicate ticket type name: %s", name)}
		}
		seen[name] = true
		if p.Price < 0 {
			return &types.ValidationError{Reason: fmt.Sprintf("ticket type %s has a negative price", name)}
		}
	}
	return nil
}

func CreateNewEvent(body *types.CreateEventRequestBody) (*models.Event, error) {
	date, err := time.Parse(config.TIME_PARSE_FORMAT, body.Date)
	if err != nil {
		return nil, &types.ValidationError{Reason: fmt.Sprintf("could not parse event date: %s", body.Date)}
	}
	if err := validateTicketTypeParams(body.TicketTypes); err != nil {
		return nil, err
	}
	ticketTypes := make([]models.TicketType, 0, len(body.TicketTypes))
	for _, p := range body.TicketTypes {
		ticketTypes = append(ticketTypes, models.TicketType{
			Name:           strings.TrimSpace(p.Name),
			Price:          p.Price,
			TotalAvailable: p.TotalAvailable,
			Sold:           0,
		})
	}
	event := models.Event{
		Title:       body.Title,
		Slug:        slug.Make(body.Title),
		Date:        date,
		Venue:       body.Venue,
		BannerImage: body.BannerImage,
		TicketTypes: ticketTypes,
	}
	db := db.GetDb()
	if err := db.Create(&event).Error; err != nil {
		log.Printf("Could not create event: %s\n", err.Error())
		return nil, err
	}
	return &event, nil
}

// UpdateEvent applies a partial update under the event's row lock so that
// inventory changes cannot interleave with in-flight purchases. Ticket types
// are reconciled by name: existing types keep their sold counters, new names
// are added, and a type can only be removed while nothing has been sold on it.
func UpdateEvent(id uint, body *types.UpdateEventRequestBody) (*models.Event, error) {
	db := db.GetDb()
	var event models.Event
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(&models.Event{ID: id}).
			First(&event).
			Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.ErrEventNotFound
			}
			return err
		}
		if body.Title != nil {
			event.Title = *body.Title
			event.Slug = slug.Make(*body.Title)
		}
		if body.Date != nil {
			date, err := time.Parse(config.TIME_PARSE_FORMAT, *body.Date)
			if err != nil {
				return &types.ValidationError{Reason: fmt.Sprintf("could not parse event date: %s", *body.Date)}
			}
			event.Date = date
		}
		if body.Venue != nil {
			event.Venue = *body.Venue
		}
		if body.BannerImage != nil {
			event.BannerImage = body.BannerImage
		}
		if body.TicketTypes != nil {
			if err := validateTicketTypeParams(body.TicketTypes); err != nil {
				return err
			}
			var existing []models.TicketType
			if err := tx.
				Clauses(clause.Locking{Strength: "UPDATE"}).
				Where(&models.TicketType{EventID: id}).
				Find(&existing).
				Error; err != nil {
				return err
			}
			byName := map[string]*models.TicketType{}
			for i := range existing {
				byName[existing[i].Name] = &existing[i]
			}
			kept := map[string]bool{}
			for _, p := range body.TicketTypes {
				name := strings.TrimSpace(p.Name)
				kept[name] = true
				if current, ok := byName[name]; ok {
					if p.TotalAvailable < current.Sold {
						return &types.ValidationError{Reason: fmt.Sprintf("ticket type %s already sold %d tickets", name, current.Sold)}
					}
					current.Price = p.Price
					current.TotalAvailable = p.TotalAvailable
					if err := tx.Save(current).Error; err != nil {
						return err
					}
					continue
				}
				tt := models.TicketType{
					EventID:        id,
					Name:           name,
					Price:          p.Price,
					TotalAvailable: p.TotalAvailable,
					Sold:           0,
				}
				if err := tx.Create(&tt).Error; err != nil {
					return err
				}
			}
			for _, current := range existing {
				if kept[current.Name] {
					continue
				}
				if current.Sold > 0 {
					return &types.ValidationError{Reason: fmt.Sprintf("ticket type %s already sold %d tickets", current.Name, current.Sold)}
				}
				// hard delete: a soft-deleted row would keep the
				// (event_id, name) pair reserved and block re-adding it
				if err := tx.Unscoped().Delete(&models.TicketType{}, current.ID).Error; err != nil {
					return err
				}
			}
		}
		if err := tx.
			Model(&models.Event{}).
			Where(&models.Event{ID: id}).
			Select("Title", "Slug", "Date", "Venue", "BannerImage").
			Updates(&event).
			Error; err != nil {
			log.Printf("Event update did not complete successfully: %s\n", err.Error())
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GetEvent(id)
}

// DeleteEvent soft-deletes the event and its ticket types. Issued tickets are
// kept as historical records.
func DeleteEvent(id uint) error {
	db := db.GetDb()
	return db.Transaction(func(tx *gorm.DB) error {
		var event models.Event
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(&models.Event{ID: id}).
			First(&event).
			Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.ErrEventNotFound
			}
			return err
		}
		if err := tx.Where(&models.TicketType{EventID: id}).Delete(&models.TicketType{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Event{}, id).Error; err != nil {
			return err
		}
		return nil
	})
}

// PurchaseTicket runs the whole purchase as one transaction. The event row
// lock serializes concurrent purchases for the same event, so availability
// checks and counter increments never race. The QR image is generated after
// commit: a reserved seat is never rolled back because image rendering failed.
func PurchaseTicket(body *types.PurchaseTicketRequestBody) (*models.Ticket, error) {
	if strings.TrimSpace(body.BuyerName) == "" {
		return nil, &types.ValidationError{Reason: "buyerName must not be empty"}
	}
	db := db.GetDb()
	var ticket models.Ticket
	err := db.Transaction(func(tx *gorm.DB) error {
		var event models.Event
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(&models.Event{ID: body.EventID}).
			First(&event).
			Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.ErrEventNotFound
			}
			return err
		}
		if err := tx.
			Where(&models.TicketType{EventID: event.ID}).
			Find(&event.TicketTypes).
			Error; err != nil {
			return err
		}
		lineItems, total, err := event.Reserve(body.Tickets)
		if err != nil {
			return err
		}
		for _, tt := range event.TicketTypes {
			// guarded write: the row lock already serializes purchases, this
			// keeps sold <= total_available even if that assumption breaks
			result := tx.
				Model(&models.TicketType{}).
				Where("id = ? AND ? <= total_available", tt.ID, tt.Sold).
				Update("sold", tt.Sold)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return &types.SoldOutError{Name: tt.Name}
			}
		}
		ticket = models.Ticket{
			BuyerName:   strings.TrimSpace(body.BuyerName),
			BuyerEmail:  body.BuyerEmail,
			BuyerPhone:  body.BuyerPhone,
			EventID:     event.ID,
			Items:       lineItems,
			TotalAmount: total,
			Status:      types.TICKET_VALID,
		}
		if err := tx.Create(&ticket).Error; err != nil {
			log.Printf("Could not create ticket: %s\n", err.Error())
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Past this point the purchase is committed. A QR failure degrades the
	// response instead of failing it; the backfill job retries later.
	if code, err := GenerateTicketCode(ticket.ID); err != nil {
		log.Printf("Could not generate code for ticket %d: %s\n", ticket.ID, err.Error())
	} else {
		ticket.QRCode = code
	}
	if ticket.BuyerEmail != "" {
		go SendTicketEmail(&ticket)
	}
	return &ticket, nil
}

func GetTicket(id uint) (*models.Ticket, error) {
	db := db.GetDb()
	var ticket models.Ticket
	if err := db.
		Model(&models.Ticket{}).
		Preload("Items").
		Where(&models.Ticket{ID: id}).
		First(&ticket).
		Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrTicketNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

// GenerateTicketCode renders the ticket's QR data URL and stores it.
func GenerateTicketCode(ticketID uint) (string, error) {
	code, err := TicketCodeDataURL(ticketID)
	if err != nil {
		return "", err
	}
	db := db.GetDb()
	if err := db.
		Model(&models.Ticket{}).
		Where(&models.Ticket{ID: ticketID}).
		Update("qr_code", code).
		Error; err != nil {
		return "", err
	}
	return code, nil
}

// BackfillTicketCodes retries QR generation for tickets that committed while
// rendering failed. Runs on a schedule.
func BackfillTicketCodes() {
	db := db.GetDb()
	var tickets []models.Ticket
	if err := db.
		Model(&models.Ticket{}).
		Where("qr_code = ''").
		Limit(50).
		Find(&tickets).
		Error; err != nil {
		log.Printf("Could not query tickets missing codes: %s\n", err.Error())
		return
	}
	for _, t := range tickets {
		if _, err := GenerateTicketCode(t.ID); err != nil {
			log.Printf("Could not backfill code for ticket %d: %s\n", t.ID, err.Error())
		}
	}
}

func SendTicketEmail(ticket *models.Ticket) {
	from := os.Getenv("SMTP_FROM")
	if from == "" {
		return
	}
	body := fmt.Sprintf("Hi %s,\n\nYour ticket #%d is confirmed. Total: %.2f\n\nSee you there!", ticket.BuyerName, ticket.ID, ticket.TotalAmount)
	err := lib.SendMail(&lib.SendMailInput{
		From:     from,
		FromName: "etix",
		To:       []string{ticket.BuyerEmail},
		Subject:  fmt.Sprintf("Your ticket #%d", ticket.ID),
		Body:     body,
	})
	if err != nil {
		log.Printf("Could not send ticket email: %s\n", err.Error())
	}
}
