package models

import "time"

// Sex as recorded on the patient file
type Sex string

const (
	SexFemale  Sex = "female"
	SexMale    Sex = "male"
	SexOther   Sex = "other"
	SexUnknown Sex = "unknown"
)

// Patient is the demographic file that pathology records hang off.
// UserID links the file to a patient account, when the patient has one.
type Patient struct {
	BaseModel
	FirstName           string    `json:"firstName"`
	LastName            string    `json:"lastName"`
	BirthDate           time.Time `json:"birthDate"`
	Sex                 Sex       `json:"sex"`
	MedicalRecordNumber string    `json:"medicalRecordNumber"`
	Phone               string    `json:"phone,omitempty"`
	Email               string    `json:"email,omitempty"`
	UserID              string    `json:"userId,omitempty"`
	CreatedBy           string    `json:"createdBy"`
}
