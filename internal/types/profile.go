package types

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CandidateProfile is the normalized profile sent for ranking. Immutable per submission.
type CandidateProfile struct {
	Education       string   `json:"education"`
	Skills          []string `json:"skills"`
	SectorInterests []string `json:"sectorInterests"`
	Location        string   `json:"location"`
}

// ProfileForm holds the raw profile form fields as submitted.
type ProfileForm struct {
	Education      string `json:"education" validate:"required,min=3"`
	Skills         string `json:"skills" validate:"required,min=3"`
	SectorInterest string `json:"sectorInterest" validate:"required,sector"`
	Location       string `json:"location" validate:"required,min=2"`
}

// fieldMessages are the user-visible messages shown next to each invalid form field.
var fieldMessages = map[string]string{
	"education":      "Please enter your education level.",
	"skills":         "Please list at least one skill.",
	"sectorInterest": "Please select a sector of interest.",
	"location":       "Please enter your preferred city or region.",
}

// ValidationError carries field-level messages keyed by form field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("validation error: %s", strings.Join(names, ", "))
}

// FormValidator validates profile forms against a fixed sector list.
type FormValidator struct {
	validate *validator.Validate
}

// NewFormValidator creates a FormValidator that accepts only the given sector values.
func NewFormValidator(sectors []Sector) *FormValidator {
	allowed := make(map[string]bool, len(sectors))
	for _, s := range sectors {
		allowed[s.Value] = true
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		return field.Tag.Get("json")
	})
	_ = v.RegisterValidation("sector", func(fl validator.FieldLevel) bool {
		return allowed[fl.Field().String()]
	})

	return &FormValidator{validate: v}
}

// Validate checks the form. Whitespace is trimmed before length checks.
// Returns a *ValidationError listing every failing field.
func (fv *FormValidator) Validate(form *ProfileForm) error {
	trimmed := ProfileForm{
		Education:      strings.TrimSpace(form.Education),
		Skills:         strings.TrimSpace(form.Skills),
		SectorInterest: strings.TrimSpace(form.SectorInterest),
		Location:       strings.TrimSpace(form.Location),
	}

	err := fv.validate.Struct(trimmed)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("failed to validate profile form: %w", err)
	}

	fields := make(map[string]string, len(validationErrors))
	for _, fe := range validationErrors {
		name := fe.Field()
		if msg, ok := fieldMessages[name]; ok {
			fields[name] = msg
		} else {
			fields[name] = fmt.Sprintf("invalid value (%s)", fe.Tag())
		}
	}
	return &ValidationError{Fields: fields}
}

// Profile converts a validated form into a CandidateProfile.
// Skills are split on commas, trimmed, and empty entries dropped.
func (f *ProfileForm) Profile() CandidateProfile {
	var skills []string
	for _, s := range strings.Split(f.Skills, ",") {
		if s = strings.TrimSpace(s); s != "" {
			skills = append(skills, s)
		}
	}

	return CandidateProfile{
		Education:       strings.TrimSpace(f.Education),
		Skills:          skills,
		SectorInterests: []string{strings.TrimSpace(f.SectorInterest)},
		Location:        strings.TrimSpace(f.Location),
	}
}
