package handlers

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pathology-records-server/internal/config"
	"pathology-records-server/internal/metrics"
	"pathology-records-server/internal/models"
	"pathology-records-server/internal/repository"
	"pathology-records-server/internal/utils"
)

// AttachmentHandler serves files attached to pathology records.
type AttachmentHandler struct {
	Repos   *repository.Repositories
	Cfg     config.AttachmentConfig
	Metrics *metrics.Collector
	Log     *zap.Logger
}

// NewAttachmentHandler creates a new AttachmentHandler.
func NewAttachmentHandler(repos *repository.Repositories, cfg config.AttachmentConfig, m *metrics.Collector, log *zap.Logger) *AttachmentHandler {
	return &AttachmentHandler{Repos: repos, Cfg: cfg, Metrics: m, Log: log}
}

// UploadAttachment stores the multipart "file" field on a record (doctor).
// The content type is sniffed from the bytes, not taken from the client.
func (h *AttachmentHandler) UploadAttachment(c *gin.Context) {
	record, ok := loadRecordForRead(c, h.Repos, h.Log, "id")
	if !ok {
		return
	}
	userID, _, ok := caller(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequest(c, "Error retrieving file from form: "+err.Error())
		return
	}
	defer file.Close()

	if header.Size > h.Cfg.MaxBytes {
		h.tooLarge(c)
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, h.Cfg.MaxBytes+1))
	if err != nil {
		utils.InternalServerError(c, "Error reading file content")
		return
	}
	if int64(len(data)) > h.Cfg.MaxBytes {
		h.tooLarge(c)
		return
	}
	if len(data) == 0 {
		utils.BadRequest(c, "File is empty")
		return
	}

	detected := mimetype.Detect(data)
	if !h.allowed(detected) {
		utils.Error(c, http.StatusUnsupportedMediaType, fmt.Sprintf("File type %s is not allowed", detected.String()))
		return
	}
	fileType, _, _ := strings.Cut(detected.String(), ";")

	attachment := models.MedicalRecordAttachment{
		RecordID:   record.ID,
		FileName:   filepath.Base(header.Filename),
		FileType:   fileType,
		SizeBytes:  int64(len(data)),
		UploadedBy: userID,
		FileData:   data,
	}
	if err := h.Repos.Attachments.Create(c.Request.Context(), &attachment); err != nil {
		utils.RespondError(c, h.Log, err, "Record not found")
		return
	}

	h.Metrics.AttachmentBytes.Observe(float64(attachment.SizeBytes))
	h.Log.Info("attachment uploaded",
		zap.String("attachment_id", attachment.ID),
		zap.String("record_id", record.ID),
		zap.String("file_type", attachment.FileType),
		zap.Int64("size_bytes", attachment.SizeBytes),
	)
	utils.Created(c, "File uploaded and linked to pathology record successfully", attachment.Info())
}

// ListAttachments returns the metadata of a record's attachments.
func (h *AttachmentHandler) ListAttachments(c *gin.Context) {
	record, ok := loadRecordForRead(c, h.Repos, h.Log, "id")
	if !ok {
		return
	}

	attachments, err := h.Repos.Attachments.ListByRecord(c.Request.Context(), record.ID)
	if err != nil {
		utils.RespondError(c, h.Log, err, "")
		return
	}
	infos := make([]models.AttachmentInfo, len(attachments))
	for i := range attachments {
		infos[i] = attachments[i].Info()
	}
	utils.Success(c, "Attachments fetched successfully", infos)
}

// DownloadAttachment serves the file to anyone who may read its record.
func (h *AttachmentHandler) DownloadAttachment(c *gin.Context) {
	attachmentID, ok := parseID(c, "attachmentId")
	if !ok {
		return
	}

	attachment, err := h.Repos.Attachments.Get(c.Request.Context(), attachmentID)
	if err != nil {
		utils.RespondError(c, h.Log, err, "Attachment not found")
		return
	}
	if _, ok := authorizeRecordRead(c, h.Repos, h.Log, attachment.RecordID); !ok {
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": attachment.FileName}))
	c.Data(http.StatusOK, attachment.FileType, attachment.FileData)
}

// DeleteAttachment removes a file. Allowed for the uploader, the record's
// author and admins.
func (h *AttachmentHandler) DeleteAttachment(c *gin.Context) {
	attachmentID, ok := parseID(c, "attachmentId")
	if !ok {
		return
	}
	userID, role, ok := caller(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	attachment, err := h.Repos.Attachments.Get(ctx, attachmentID)
	if err != nil {
		utils.RespondError(c, h.Log, err, "Attachment not found")
		return
	}
	if role != models.RoleAdmin && attachment.UploadedBy != userID {
		record, err := h.Repos.Records.Get(ctx, attachment.RecordID)
		if err != nil || !canWriteRecord(record, userID, role) {
			utils.Forbidden(c, "You are not authorized to delete this attachment")
			return
		}
	}

	if err := h.Repos.Attachments.Delete(ctx, attachment.ID); err != nil {
		utils.RespondError(c, h.Log, err, "Attachment not found")
		return
	}
	utils.Success(c, "Attachment deleted successfully", nil)
}

func (h *AttachmentHandler) allowed(detected *mimetype.MIME) bool {
	for _, t := range h.Cfg.AllowedTypes {
		if detected.Is(t) {
			return true
		}
	}
	return false
}

func (h *AttachmentHandler) tooLarge(c *gin.Context) {
	utils.Error(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the %d byte limit", h.Cfg.MaxBytes))
}
