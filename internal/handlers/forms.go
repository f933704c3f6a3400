package handlers

import (
	"github.com/gin-gonic/gin"

	"pathology-records-server/internal/forms"
	"pathology-records-server/internal/models"
	"pathology-records-server/internal/utils"
)

// FormHandler serves the pathology form definitions clients render.
type FormHandler struct{}

// NewFormHandler creates a new FormHandler.
func NewFormHandler() *FormHandler {
	return &FormHandler{}
}

// ListForms returns a summary of every pathology form.
func (h *FormHandler) ListForms(c *gin.Context) {
	defs := forms.All()
	summaries := make([]forms.Summary, len(defs))
	for i, def := range defs {
		summaries[i] = def.Summary()
	}
	utils.Success(c, "Forms fetched successfully", summaries)
}

// GetForm returns the full definition of one pathology form.
func (h *FormHandler) GetForm(c *gin.Context) {
	def, err := forms.Lookup(models.Pathology(c.Param("pathology")))
	if err != nil {
		utils.NotFound(c, "Form not found")
		return
	}
	utils.Success(c, "Form fetched successfully", def)
}
