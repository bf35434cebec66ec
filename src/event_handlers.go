package main

import (
	"context"
	"encoding/json"
	"etix/src/lib"
	"etix/src/types"
	"etix/src/utils"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const eventsCacheKey = "events:list"

func invalidateEventsCache() {
	rd := lib.GetRedisClient()
	if rd == nil {
		return
	}
	if err := rd.Del(context.Background(), eventsCacheKey).Err(); err != nil {
		log.Printf("Could not invalidate events cache: %s\n", err.Error())
	}
}

func eventHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/events", func(ctx *gin.Context) {
			rd := lib.GetRedisClient()
			if rd != nil {
				cached, err := rd.Get(context.Background(), eventsCacheKey).Result()
				if err == nil {
					ctx.Data(http.StatusOK, "application/json", []byte(cached))
					return
				}
			}
			events, err := utils.ListEvents()
			if err != nil {
				ctx.JSON(types.HTTPStatus(err), gin.H{"error": err.Error()})
				return
			}
			if rd != nil {
				if raw, err := json.Marshal(events); err == nil {
					rd.SetEx(context.Background(), eventsCacheKey, string(raw), time.Minute)
				}
			}
			ctx.JSON(http.StatusOK, events)
		}).
		GET("/events/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			event, err := utils.GetEvent(params.ID)
			if err != nil {
				ctx.JSON(types.HTTPStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, event)
		})
	return g
}
