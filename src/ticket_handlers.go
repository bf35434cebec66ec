package main

import (
	"context"
	"encoding/json"
	"etix/src/lib"
	"etix/src/types"
	"etix/src/utils"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func idempotencyCacheKey(key string) string {
	return fmt.Sprintf("purchase:idem:%s", key)
}

func ticketHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/tickets/purchase", func(ctx *gin.Context) {
			var body types.PurchaseTicketRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			idemKey := ctx.GetHeader("X-Idempotency-Key")
			rd := lib.GetRedisClient()
			if idemKey != "" && rd != nil {
				// claim the key before touching inventory so two concurrent
				// submissions with the same key cannot both reserve
				claimed, err := rd.SetNX(context.Background(), idempotencyCacheKey(idemKey), "pending", 24*time.Hour).Result()
				if err == nil && !claimed {
					cached, err := rd.Get(context.Background(), idempotencyCacheKey(idemKey)).Result()
					if err == nil && cached != "pending" {
						ctx.Data(http.StatusOK, "application/json", []byte(cached))
						return
					}
					ctx.JSON(http.StatusConflict, gin.H{"error": "a purchase with this idempotency key is already in progress"})
					return
				}
			}
			ticket, err := utils.PurchaseTicket(&body)
			if err != nil {
				if idemKey != "" && rd != nil {
					rd.Del(context.Background(), idempotencyCacheKey(idemKey))
				}
				ctx.JSON(types.HTTPStatus(err), gin.H{"error": err.Error()})
				return
			}
			if idemKey != "" && rd != nil {
				if raw, err := json.Marshal(ticket); err == nil {
					rd.Set(context.Background(), idempotencyCacheKey(idemKey), string(raw), 24*time.Hour)
				}
			}
			invalidateEventsCache()
			ctx.JSON(http.StatusCreated, ticket)
		}).
		GET("/tickets/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ticket, err := utils.GetTicket(params.ID)
			if err != nil {
				ctx.JSON(types.HTTPStatus(err), gin.H{"error": err.Error()})
				return
			}
			if ticket.QRCode == "" {
				// generation failed at purchase time, try again on read
				code, err := utils.GenerateTicketCode(ticket.ID)
				if err != nil {
					log.Printf("Could not generate code for ticket %d: %s\n", ticket.ID, err.Error())
				} else {
					ticket.QRCode = code
				}
			}
			ctx.JSON(http.StatusOK, ticket)
		})
	return g
}
