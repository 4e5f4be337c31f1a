package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"faceattend/internal/apperr"
	"faceattend/internal/checkin"
	"faceattend/internal/enrollment"
	"faceattend/internal/identity"
)

const imageField = "image"

type enroller interface {
	Enroll(ctx context.Context, caller identity.Caller, subjectID int64, image []byte) (enrollment.Result, error)
}

type checker interface {
	CheckIn(ctx context.Context, caller identity.Caller, image []byte, taskID *int64) (checkin.Result, error)
}

// FaceHandler accepts face images for enrollment and check-in.
type FaceHandler struct {
	enroller      enroller
	checker       checker
	maxImageBytes int64
}

// NewFaceHandler creates a new handler. maxImageBytes <= 0 disables the size check.
func NewFaceHandler(e enroller, ch checker, maxImageBytes int64) *FaceHandler {
	return &FaceHandler{enroller: e, checker: ch, maxImageBytes: maxImageBytes}
}

// Enroll stores a face sample for the caller, or for userId when the caller
// is a teacher.
func (h *FaceHandler) Enroll(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	subjectID := caller.ID
	if raw := c.PostForm("userId"); raw != "" {
		id, err := parseID(raw, "userId")
		if err != nil {
			Error(c, err)
			return
		}
		subjectID = id
	}
	image, err := h.readImage(c)
	if err != nil {
		Error(c, err)
		return
	}

	res, err := h.enroller.Enroll(c.Request.Context(), caller, subjectID, image)
	if err != nil {
		Error(c, err)
		return
	}
	msg := "face enrolled"
	if res.Partial {
		msg = "face verified, sample not saved"
	}
	JSON(c, http.StatusOK, msg, res)
}

// CheckIn recognizes the submitted face and records attendance when the
// optional taskId is open for the recognized student.
func (h *FaceHandler) CheckIn(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	var taskID *int64
	if raw := c.PostForm("taskId"); raw != "" {
		id, err := parseID(raw, "taskId")
		if err != nil {
			Error(c, err)
			return
		}
		taskID = &id
	}
	image, err := h.readImage(c)
	if err != nil {
		Error(c, err)
		return
	}

	res, err := h.checker.CheckIn(c.Request.Context(), caller, image, taskID)
	if err != nil {
		Error(c, err)
		return
	}
	JSON(c, http.StatusOK, res.Message, res)
}

func (h *FaceHandler) readImage(c *gin.Context) ([]byte, error) {
	header, err := c.FormFile(imageField)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrValidation, "image file is required")
	}
	if h.maxImageBytes > 0 && header.Size > h.maxImageBytes {
		return nil, apperr.Clone(apperr.ErrValidation, fmt.Sprintf("image exceeds %d bytes", h.maxImageBytes))
	}
	f, err := header.Open()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrValidation, "image could not be read")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrValidation, "image could not be read")
	}
	if len(data) == 0 {
		return nil, apperr.Clone(apperr.ErrValidation, "image file is empty")
	}
	if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "image/") {
		return nil, apperr.Clone(apperr.ErrValidation, "unsupported image type "+mt.String())
	}
	return data, nil
}

func parseID(raw, field string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Clone(apperr.ErrValidation, field+" must be a positive integer")
	}
	return id, nil
}
