package main

import (
	awslib "etix/src/lib/aws"
	"etix/src/types"
	"etix/src/utils"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func adminHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/admin/events", func(ctx *gin.Context) {
			var body types.CreateEventRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			event, err := utils.CreateNewEvent(&body)
			if err != nil {
				ctx.JSON(types.HTTPStatus(err), gin.H{"error": err.Error()})
				return
			}
			invalidateEventsCache()
			ctx.JSON(http.StatusCreated, event)
		}).
		PUT("/admin/events/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var body types.UpdateEventRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			event, err := utils.UpdateEvent(params.ID, &body)
			if err != nil {
				ctx.JSON(types.HTTPStatus(err), gin.H{"error": err.Error()})
				return
			}
			invalidateEventsCache()
			ctx.JSON(http.StatusOK, event)
		}).
		DELETE("/admin/events/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := utils.DeleteEvent(params.ID); err != nil {
				ctx.JSON(types.HTTPStatus(err), gin.H{"error": err.Error()})
				return
			}
			invalidateEventsCache()
			ctx.Status(http.StatusNoContent)
		}).
		POST("/admin/events/:id/banner", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if _, err := utils.GetEvent(params.ID); err != nil {
				ctx.JSON(types.HTTPStatus(err), gin.H{"error": err.Error()})
				return
			}
			fileHeader, err := ctx.FormFile("banner")
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			file, err := fileHeader.Open()
			if err != nil {
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			defer file.Close()
			contentType := fileHeader.Header.Get("Content-Type")
			if contentType == "" {
				contentType = "image/jpeg"
			}
			key := fmt.Sprintf("banners/event-%d-%s", params.ID, uuid.NewString())
			url, err := awslib.S3UploadBanner(key, contentType, file)
			if err != nil {
				log.Printf("Error uploading asset to S3 bucket: %s\n", err.Error())
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			event, err := utils.UpdateEvent(params.ID, &types.UpdateEventRequestBody{BannerImage: url})
			if err != nil {
				ctx.JSON(types.HTTPStatus(err), gin.H{"error": err.Error()})
				return
			}
			invalidateEventsCache()
			ctx.JSON(http.StatusOK, event)
		})
	return g
}
