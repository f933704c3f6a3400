package handlers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pathology-records-server/internal/forms"
	"pathology-records-server/internal/metrics"
	"pathology-records-server/internal/models"
	"pathology-records-server/internal/repository"
	"pathology-records-server/internal/store"
	"pathology-records-server/internal/utils"
)

// RecordHandler serves pathology records.
type RecordHandler struct {
	Repos   *repository.Repositories
	Metrics *metrics.Collector
	Log     *zap.Logger
}

// NewRecordHandler creates a new RecordHandler.
func NewRecordHandler(repos *repository.Repositories, m *metrics.Collector, log *zap.Logger) *RecordHandler {
	return &RecordHandler{Repos: repos, Metrics: m, Log: log}
}

// CreateRecordRequest is the body of POST /patients/:id/records.
// VisitDate defaults to now.
type CreateRecordRequest struct {
	Pathology string          `json:"pathology" validate:"required"`
	Kind      string          `json:"kind" validate:"required,oneof=intake follow_up"`
	VisitDate string          `json:"visitDate"`
	Form      json.RawMessage `json:"form"`
}

// CreateRecord stores a new pathology record for a patient (doctor).
func (h *RecordHandler) CreateRecord(c *gin.Context) {
	patientID, ok := parseID(c, "id")
	if !ok {
		return
	}
	userID, _, ok := caller(c)
	if !ok {
		return
	}
	var req CreateRecordRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	ctx := c.Request.Context()

	pathology := models.Pathology(req.Pathology)
	if !pathology.IsValid() {
		utils.ValidationFailed(c, []string{"pathology: must be one of [asthma lung_cancer sleep_apnea tuberculosis]"})
		return
	}
	visitDate, ok := visitDateOrNow(c, req.VisitDate)
	if !ok {
		return
	}
	form, ok := decodeForm(c, pathology, req.Form)
	if !ok {
		return
	}

	if _, err := h.Repos.Patients.Get(ctx, patientID); err != nil {
		utils.RespondError(c, h.Log, err, "Patient not found")
		return
	}

	record := models.PathologyRecord{
		PatientID: patientID,
		Pathology: pathology,
		Kind:      models.RecordKind(req.Kind),
		VisitDate: visitDate,
		Form:      form,
		AuthorID:  userID,
	}
	if err := h.Repos.Records.Create(ctx, &record); err != nil {
		utils.RespondError(c, h.Log, err, "Record not found")
		return
	}

	h.Metrics.RecordsCreatedTotal.WithLabelValues(string(record.Pathology), string(record.Kind)).Inc()
	h.Log.Info("pathology record created",
		zap.String("record_id", record.ID),
		zap.String("patient_id", patientID),
		zap.String("pathology", string(record.Pathology)),
		zap.String("kind", string(record.Kind)),
	)
	utils.Created(c, "Pathology record created successfully", record)
}

// ListRecords lists a patient's records newest first, filtered by
// ?pathology= and ?kind=.
func (h *RecordHandler) ListRecords(c *gin.Context) {
	patient, ok := loadPatientForRead(c, h.Repos, h.Log, "id")
	if !ok {
		return
	}

	filter := repository.RecordFilter{
		Pathology: models.Pathology(c.Query("pathology")),
		Kind:      models.RecordKind(c.Query("kind")),
	}
	if filter.Pathology != "" && !filter.Pathology.IsValid() {
		utils.BadRequest(c, "Unknown pathology: "+string(filter.Pathology))
		return
	}
	if filter.Kind != "" && !filter.Kind.IsValid() {
		utils.BadRequest(c, "Unknown record kind: "+string(filter.Kind))
		return
	}

	records, err := h.Repos.Records.ListByPatient(c.Request.Context(), patient.ID, filter)
	if err != nil {
		utils.RespondError(c, h.Log, err, "")
		return
	}
	utils.Success(c, "Pathology records fetched successfully", records)
}

// GetRecord returns one record to doctors, admins and the owning patient.
func (h *RecordHandler) GetRecord(c *gin.Context) {
	record, ok := loadRecordForRead(c, h.Repos, h.Log, "id")
	if !ok {
		return
	}
	utils.Success(c, "Pathology record fetched successfully", record)
}

// UpdateRecordRequest is the body of PUT /records/:id.
type UpdateRecordRequest struct {
	VisitDate string          `json:"visitDate" validate:"required"`
	Form      json.RawMessage `json:"form"`
}

// UpdateRecord replaces the visit date and form (author or admin).
func (h *RecordHandler) UpdateRecord(c *gin.Context) {
	record, ok := h.loadRecordForWrite(c)
	if !ok {
		return
	}
	var req UpdateRecordRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	visitDate, ok := visitDateOrNow(c, req.VisitDate)
	if !ok {
		return
	}
	form, ok := decodeForm(c, record.Pathology, req.Form)
	if !ok {
		return
	}

	record.VisitDate = visitDate
	record.Form = form
	if err := h.Repos.Records.Update(c.Request.Context(), record); err != nil {
		utils.RespondError(c, h.Log, err, "Record not found")
		return
	}
	utils.Success(c, "Pathology record updated successfully", record)
}

// PatchFieldsRequest maps field paths of the record's form definition to
// new values. A null value clears an optional field.
type PatchFieldsRequest struct {
	Fields map[string]any `json:"fields" validate:"required,min=1"`
}

// PatchRecordFields updates individual form fields (author or admin). The
// resulting form is validated as a whole.
func (h *RecordHandler) PatchRecordFields(c *gin.Context) {
	record, ok := h.loadRecordForWrite(c)
	if !ok {
		return
	}
	var req PatchFieldsRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	def, err := forms.Lookup(record.Pathology)
	if err != nil {
		utils.RespondError(c, h.Log, err, "")
		return
	}
	current := map[string]any{}
	if len(record.Form) > 0 {
		if err := json.Unmarshal(record.Form, &current); err != nil {
			utils.RespondError(c, h.Log, err, "")
			return
		}
	}
	if err := def.Apply(current, req.Fields); err != nil {
		utils.RespondError(c, h.Log, err, "")
		return
	}

	raw, err := json.Marshal(current)
	if err != nil {
		utils.RespondError(c, h.Log, err, "")
		return
	}
	form, ok := decodeForm(c, record.Pathology, raw)
	if !ok {
		return
	}

	record.Form = form
	if err := h.Repos.Records.Update(c.Request.Context(), record); err != nil {
		utils.RespondError(c, h.Log, err, "Record not found")
		return
	}
	utils.Success(c, "Pathology record updated successfully", record)
}

// DeleteRecord removes a record and its attachments (author or admin).
func (h *RecordHandler) DeleteRecord(c *gin.Context) {
	record, ok := h.loadRecordForWrite(c)
	if !ok {
		return
	}
	if err := h.Repos.Records.Delete(c.Request.Context(), record.ID); err != nil {
		utils.RespondError(c, h.Log, err, "Record not found")
		return
	}
	h.Log.Info("pathology record deleted", zap.String("record_id", record.ID))
	utils.Success(c, "Pathology record deleted successfully", nil)
}

// loadRecordForWrite loads the record named by :id when the caller is its
// author or an admin.
func (h *RecordHandler) loadRecordForWrite(c *gin.Context) (*models.PathologyRecord, bool) {
	id, ok := parseID(c, "id")
	if !ok {
		return nil, false
	}
	userID, role, ok := caller(c)
	if !ok {
		return nil, false
	}

	record, err := h.Repos.Records.Get(c.Request.Context(), id)
	if err != nil {
		utils.RespondError(c, h.Log, err, "Record not found")
		return nil, false
	}
	if !canWriteRecord(record, userID, role) {
		utils.Forbidden(c, "Only the authoring doctor or an admin can modify this record")
		return nil, false
	}
	return record, true
}

// loadRecordForRead loads the record named by param for doctors, admins
// and the patient it belongs to.
func loadRecordForRead(c *gin.Context, repos *repository.Repositories, log *zap.Logger, param string) (*models.PathologyRecord, bool) {
	id, ok := parseID(c, param)
	if !ok {
		return nil, false
	}
	return authorizeRecordRead(c, repos, log, id)
}

func authorizeRecordRead(c *gin.Context, repos *repository.Repositories, log *zap.Logger, recordID string) (*models.PathologyRecord, bool) {
	userID, role, ok := caller(c)
	if !ok {
		return nil, false
	}
	ctx := c.Request.Context()

	record, err := repos.Records.Get(ctx, recordID)
	if err != nil {
		utils.RespondError(c, log, err, "Record not found")
		return nil, false
	}
	switch role {
	case models.RoleDoctor, models.RoleAdmin:
		return record, true
	case models.RolePatient:
		patient, err := repos.Patients.Get(ctx, record.PatientID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			utils.RespondError(c, log, err, "")
			return nil, false
		}
		if err == nil && canReadPatient(patient, userID, role) {
			return record, true
		}
	}
	utils.Forbidden(c, "You are not authorized to view this record")
	return nil, false
}

func canWriteRecord(r *models.PathologyRecord, userID string, role models.Role) bool {
	switch role {
	case models.RoleAdmin:
		return true
	case models.RoleDoctor:
		return r.AuthorID == userID
	}
	return false
}

// decodeForm validates a form payload and returns its normalized JSON.
func decodeForm(c *gin.Context, p models.Pathology, raw json.RawMessage) (json.RawMessage, bool) {
	form, err := models.DecodeForm(p, raw)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			utils.ValidationFailed(c, verr.Fields)
		} else {
			utils.BadRequest(c, err.Error())
		}
		return nil, false
	}
	encoded, err := models.EncodeForm(form)
	if err != nil {
		utils.InternalServerError(c, "Failed to encode form")
		return nil, false
	}
	return encoded, true
}

func visitDateOrNow(c *gin.Context, s string) (time.Time, bool) {
	if s == "" {
		return time.Now().UTC(), true
	}
	t, err := parseDate(s)
	if err != nil {
		utils.ValidationFailed(c, []string{"visitDate: must be a date (YYYY-MM-DD or RFC 3339)"})
		return time.Time{}, false
	}
	return t, true
}
