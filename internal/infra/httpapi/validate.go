package httpapi

import (
	"reflect"
	"strings"

	"attendance_tracker_bot/internal/domain/batch"

	"github.com/go-playground/validator/v10"
)

const roleTag = "role"

// requestValidator adapts validator.Validate to echo.Validator.
type requestValidator struct {
	v *validator.Validate
}

func newValidator() *requestValidator {
	v := validator.New()

	// Use JSON tag names for errors instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation(roleTag, func(fl validator.FieldLevel) bool {
		_, ok := batch.ParseRole(fl.Field().String())
		return ok
	})
	return &requestValidator{v: v}
}

func (rv *requestValidator) Validate(i interface{}) error {
	return rv.v.Struct(i)
}

type groupRequest struct {
	GroupID string `json:"groupId" validate:"required,endswith=@g.us"`
}

type settingsRequest struct {
	IsTrackingEnabled *bool `json:"isTrackingEnabled" validate:"required"`
	IsSharingEnabled  *bool `json:"isSharingEnabled" validate:"required"`
}

type roleRequest struct {
	Role string `json:"role" validate:"role"`
}
