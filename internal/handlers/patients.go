package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pathology-records-server/internal/models"
	"pathology-records-server/internal/repository"
	"pathology-records-server/internal/store"
	"pathology-records-server/internal/utils"
)

// PatientHandler serves patient files.
type PatientHandler struct {
	Repos *repository.Repositories
	Log   *zap.Logger
}

// NewPatientHandler creates a new PatientHandler.
func NewPatientHandler(repos *repository.Repositories, log *zap.Logger) *PatientHandler {
	return &PatientHandler{Repos: repos, Log: log}
}

// PatientRequest is the body of create and update. UserID links the file
// to an existing patient account.
type PatientRequest struct {
	FirstName           string `json:"firstName" validate:"required,max=100"`
	LastName            string `json:"lastName" validate:"required,max=100"`
	BirthDate           string `json:"birthDate" validate:"required"`
	Sex                 string `json:"sex" validate:"required,oneof=female male other unknown"`
	MedicalRecordNumber string `json:"medicalRecordNumber" validate:"required,max=50"`
	Phone               string `json:"phone" validate:"omitempty,max=30"`
	Email               string `json:"email" validate:"omitempty,email"`
	UserID              string `json:"userId" validate:"omitempty,uuid"`
}

// CreatePatient opens a patient file (doctor, admin).
func (h *PatientHandler) CreatePatient(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		return
	}
	var req PatientRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	patient := models.Patient{CreatedBy: userID}
	if !h.apply(c, &patient, &req) {
		return
	}

	if err := h.Repos.Patients.Create(c.Request.Context(), &patient); err != nil {
		utils.RespondError(c, h.Log, err, "Patient not found")
		return
	}

	h.Log.Info("patient created", zap.String("patient_id", patient.ID), zap.String("created_by", userID))
	utils.Created(c, "Patient created successfully", patient)
}

// ListPatients lists patient files (doctor, admin), optionally filtered by
// ?lastName= and ?mrn=.
func (h *PatientHandler) ListPatients(c *gin.Context) {
	patients, err := h.Repos.Patients.List(c.Request.Context(), repository.PatientFilter{
		LastName: c.Query("lastName"),
		MRN:      c.Query("mrn"),
	})
	if err != nil {
		utils.RespondError(c, h.Log, err, "")
		return
	}
	utils.Success(c, "Patients fetched successfully", patients)
}

// GetPatient returns one file. Patients may read only their own.
func (h *PatientHandler) GetPatient(c *gin.Context) {
	patient, ok := loadPatientForRead(c, h.Repos, h.Log, "id")
	if !ok {
		return
	}
	utils.Success(c, "Patient fetched successfully", patient)
}

// GetMyPatient returns the file linked to the calling patient account.
func (h *PatientHandler) GetMyPatient(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		return
	}
	patient, err := h.Repos.Patients.GetByUserID(c.Request.Context(), userID)
	if err != nil {
		utils.RespondError(c, h.Log, err, "No patient file is linked to this account")
		return
	}
	utils.Success(c, "Patient fetched successfully", patient)
}

// UpdatePatient replaces the demographic fields of a file (doctor, admin).
func (h *PatientHandler) UpdatePatient(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req PatientRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	ctx := c.Request.Context()

	patient, err := h.Repos.Patients.Get(ctx, id)
	if err != nil {
		utils.RespondError(c, h.Log, err, "Patient not found")
		return
	}
	if !h.apply(c, patient, &req) {
		return
	}

	if err := h.Repos.Patients.Update(ctx, patient); err != nil {
		utils.RespondError(c, h.Log, err, "Patient not found")
		return
	}
	utils.Success(c, "Patient updated successfully", patient)
}

// DeletePatient removes a file without records (doctor, admin).
func (h *PatientHandler) DeletePatient(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.Repos.Patients.Delete(c.Request.Context(), id); err != nil {
		utils.RespondError(c, h.Log, err, "Patient not found")
		return
	}
	h.Log.Info("patient deleted", zap.String("patient_id", id))
	utils.Success(c, "Patient deleted successfully", nil)
}

// apply copies req onto p after checking the birth date and account link.
func (h *PatientHandler) apply(c *gin.Context, p *models.Patient, req *PatientRequest) bool {
	birthDate, err := parseDate(req.BirthDate)
	if err != nil {
		utils.ValidationFailed(c, []string{"birthDate: must be a date (YYYY-MM-DD or RFC 3339)"})
		return false
	}

	if req.UserID != "" && req.UserID != p.UserID {
		ctx := c.Request.Context()
		account, err := h.Repos.Users.Get(ctx, req.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.ValidationFailed(c, []string{"userId: no such account"})
				return false
			}
			utils.RespondError(c, h.Log, err, "")
			return false
		}
		if account.Role != models.RolePatient {
			utils.ValidationFailed(c, []string{"userId: account is not a patient"})
			return false
		}
		linked, err := h.Repos.Patients.GetByUserID(ctx, req.UserID)
		switch {
		case err == nil && linked.ID != p.ID:
			utils.Conflict(c, "Account is already linked to another patient file")
			return false
		case err != nil && !errors.Is(err, store.ErrNotFound):
			utils.RespondError(c, h.Log, err, "")
			return false
		}
	}

	p.FirstName = req.FirstName
	p.LastName = req.LastName
	p.BirthDate = birthDate
	p.Sex = models.Sex(req.Sex)
	p.MedicalRecordNumber = req.MedicalRecordNumber
	p.Phone = req.Phone
	p.Email = req.Email
	p.UserID = req.UserID
	return true
}

// loadPatientForRead loads the patient named by param and checks the
// caller may see it: doctors and admins always, patients only their own.
func loadPatientForRead(c *gin.Context, repos *repository.Repositories, log *zap.Logger, param string) (*models.Patient, bool) {
	id, ok := parseID(c, param)
	if !ok {
		return nil, false
	}
	userID, role, ok := caller(c)
	if !ok {
		return nil, false
	}

	patient, err := repos.Patients.Get(c.Request.Context(), id)
	if err != nil {
		utils.RespondError(c, log, err, "Patient not found")
		return nil, false
	}
	if !canReadPatient(patient, userID, role) {
		utils.Forbidden(c, "You are not authorized to view this patient")
		return nil, false
	}
	return patient, true
}

func canReadPatient(p *models.Patient, userID string, role models.Role) bool {
	switch role {
	case models.RoleDoctor, models.RoleAdmin:
		return true
	case models.RolePatient:
		return p.UserID != "" && p.UserID == userID
	}
	return false
}
