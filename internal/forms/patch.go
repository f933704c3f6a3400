package forms

import (
	"fmt"

	"pathology-records-server/internal/docpath"
)

// Apply writes changes (path -> JSON-decoded value) into form. Every path
// must be a field of the definition and every value must fit its field.
// Nothing is written unless all changes are acceptable.
func (d *Definition) Apply(form map[string]any, changes map[string]any) error {
	if len(changes) == 0 {
		return fmt.Errorf("%w: no fields to update", ErrFieldValue)
	}
	for path, value := range changes {
		f, err := d.Field(path)
		if err != nil {
			return err
		}
		if err := f.CheckValue(value); err != nil {
			return err
		}
	}
	for path, value := range changes {
		if value == nil {
			docpath.Delete(form, path)
			continue
		}
		if err := docpath.Set(form, path, value); err != nil {
			return fmt.Errorf("%w: %v", ErrFieldValue, err)
		}
	}
	return nil
}
