package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"faceattend/internal/apperr"
	"faceattend/internal/attendance"
	"faceattend/internal/identity"
)

type taskEngine interface {
	Create(ctx context.Context, caller identity.Caller, req attendance.CreateTaskRequest) (*attendance.TaskView, error)
	List(ctx context.Context, caller identity.Caller, classFilter *int64) ([]attendance.TaskView, error)
	Stats(ctx context.Context, caller identity.Caller, taskID int64) (*attendance.Stats, error)
}

// TaskHandler serves attendance task endpoints.
type TaskHandler struct {
	engine    taskEngine
	validator *validator.Validate
}

// NewTaskHandler creates a new handler.
func NewTaskHandler(engine taskEngine, validate *validator.Validate) *TaskHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &TaskHandler{engine: engine, validator: validate}
}

// Create opens a new task for the teacher's class.
func (h *TaskHandler) Create(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	var req attendance.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, apperr.Wrap(err, apperr.ErrValidation, "invalid task payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		Error(c, apperr.Invalid(err, "invalid task payload"))
		return
	}

	view, err := h.engine.Create(c.Request.Context(), caller, req)
	if err != nil {
		Error(c, err)
		return
	}
	Created(c, "task created", view)
}

// List returns the caller's tasks with derived status. Teachers may filter
// with ?classId.
func (h *TaskHandler) List(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	var classFilter *int64
	if raw := c.Query("classId"); raw != "" {
		id, err := parseID(raw, "classId")
		if err != nil {
			Error(c, err)
			return
		}
		classFilter = &id
	}

	views, err := h.engine.List(c.Request.Context(), caller, classFilter)
	if err != nil {
		Error(c, err)
		return
	}
	if views == nil {
		views = []attendance.TaskView{}
	}
	JSON(c, http.StatusOK, "", views)
}

// Stats reports attendance for one task.
func (h *TaskHandler) Stats(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	taskID, err := parseID(c.Param("id"), "task id")
	if err != nil {
		Error(c, err)
		return
	}
	stats, err := h.engine.Stats(c.Request.Context(), caller, taskID)
	if err != nil {
		Error(c, err)
		return
	}
	JSON(c, http.StatusOK, "", stats)
}
