package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Routes groups the handlers mounted by the API process.
type Routes struct {
	Accounts *AccountHandler
	Faces    *FaceHandler
	Tasks    *TaskHandler
	Stream   *StreamHandler
	Health   *HealthHandler
	// Auth verifies the bearer token and stores the caller.
	Auth gin.HandlerFunc
	// Metrics is served on /metrics when set.
	Metrics http.Handler
}

// Register mounts every route on r.
func (rt Routes) Register(r gin.IRouter) {
	if rt.Health != nil {
		r.GET("/healthz", rt.Health.Check)
	}
	if rt.Metrics != nil {
		r.GET("/metrics", gin.WrapH(rt.Metrics))
	}

	v1 := r.Group("/api/v1")
	v1.POST("/register", rt.Accounts.Register)
	v1.POST("/login", rt.Accounts.Login)
	v1.GET("/classes", rt.Accounts.Classes)

	secured := v1.Group("", rt.Auth)
	secured.GET("/me", rt.Accounts.Me)

	face := secured.Group("/face")
	face.POST("/enroll", rt.Faces.Enroll)
	face.POST("/checkin", rt.Faces.CheckIn)

	tasks := secured.Group("/tasks")
	tasks.POST("", rt.Tasks.Create)
	tasks.GET("", rt.Tasks.List)
	tasks.GET("/stream", rt.Stream.Tasks)
	tasks.GET("/:id/stats", rt.Tasks.Stats)
}
