package api

import (
	"github.com/gin-gonic/gin"

	"memesync/config"
	"memesync/store"
	"memesync/task"
)

func SetupRouter(tm *task.Manager, st store.Store, cfg *config.Config) *gin.Engine {
	r := gin.Default()
	r.Use(CORSMiddleware())
	h := NewHandler(tm, st, cfg)

	r.GET("/health", h.handleHealth)

	// Output URLs carry an unguessable job id, which is the access control
	// for rendered GIFs: embedding them anywhere must keep working without
	// a token.
	r.GET("/output/preview/:jobId", h.handlePreview)
	r.GET("/output/:filename", h.handleGetOutput)

	authed := r.Group("/")
	authed.Use(AuthMiddleware(cfg))
	{
		authed.POST("/upload", h.handleUpload)
		authed.POST("/generate", h.handleGenerate)
		authed.GET("/status/:taskId", h.handleStatus)
	}
	return r
}
