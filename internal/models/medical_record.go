package models

import (
	"encoding/json"
	"time"
)

// Pathology is the disease category a record documents.
type Pathology string

const (
	PathologyAsthma       Pathology = "asthma"
	PathologyLungCancer   Pathology = "lung_cancer"
	PathologySleepApnea   Pathology = "sleep_apnea"
	PathologyTuberculosis Pathology = "tuberculosis"
)

// Pathologies lists every supported pathology in display order.
var Pathologies = []Pathology{
	PathologyAsthma,
	PathologyLungCancer,
	PathologySleepApnea,
	PathologyTuberculosis,
}

// IsValid reports whether p is a supported pathology.
func (p Pathology) IsValid() bool {
	for _, known := range Pathologies {
		if p == known {
			return true
		}
	}
	return false
}

// RecordKind distinguishes the first visit from later ones.
type RecordKind string

const (
	KindIntake   RecordKind = "intake"
	KindFollowUp RecordKind = "follow_up"
)

// IsValid reports whether k is a known record kind.
func (k RecordKind) IsValid() bool {
	return k == KindIntake || k == KindFollowUp
}

// PathologyRecord is one visit's form for one pathology. Form holds the
// pathology-specific payload; its shape is given by the pathology's form type.
type PathologyRecord struct {
	BaseModel
	PatientID string          `json:"patientId"`
	Pathology Pathology       `json:"pathology"`
	Kind      RecordKind      `json:"kind"`
	IntakeID  string          `json:"intakeId,omitempty"`
	VisitDate time.Time       `json:"visitDate"`
	Form      json.RawMessage `json:"form"`
	AuthorID  string          `json:"authorId"`
}

// MedicalRecordAttachment represents a file attached to a pathology record
type MedicalRecordAttachment struct {
	BaseModel
	RecordID   string `json:"recordId"`
	FileName   string `json:"fileName"`
	FileType   string `json:"fileType"`
	SizeBytes  int64  `json:"sizeBytes"`
	UploadedBy string `json:"uploadedBy"`
	FileData   []byte `json:"fileData"`
}

// AttachmentInfo is the attachment metadata returned by the API.
type AttachmentInfo struct {
	ID         string    `json:"id"`
	RecordID   string    `json:"recordId"`
	FileName   string    `json:"fileName"`
	FileType   string    `json:"fileType"`
	SizeBytes  int64     `json:"sizeBytes"`
	UploadedBy string    `json:"uploadedBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Info strips the file content.
func (a *MedicalRecordAttachment) Info() AttachmentInfo {
	return AttachmentInfo{
		ID:         a.ID,
		RecordID:   a.RecordID,
		FileName:   a.FileName,
		FileType:   a.FileType,
		SizeBytes:  a.SizeBytes,
		UploadedBy: a.UploadedBy,
		CreatedAt:  a.CreatedAt,
	}
}
