// README: Request validation: custom binding tags on gin's validator and readable field errors.
package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"schoolride/internal/types"
)

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func init() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("entity_id", func(fl validator.FieldLevel) bool {
		return isValidID(fl.Field().String())
	})
	_ = v.RegisterValidation("day", func(fl validator.FieldLevel) bool {
		_, err := types.ParseDay(fl.Field().String())
		return err == nil
	})
}

// bindJSON decodes and validates the body; it writes 400 and returns false on failure.
func bindJSON(c *gin.Context, v any) bool {
	err := c.ShouldBindJSON(v)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(c, http.StatusBadRequest, "invalid json")
		return false
	}
	details := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fieldError{Field: fe.Field(), Message: validationMessage(fe), Code: fe.Tag()})
	}
	writeJSON(c, http.StatusBadRequest, errorResponse{Error: "validation failed", Details: details})
	return false
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "entity_id":
		return "must be an id of letters, digits, '-' or '_'"
	case "day":
		return "must be YYYY-MM-DD"
	case "datetime":
		return "must match " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "email":
		return "must be an email address"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "latitude", "longitude":
		return "must be a valid " + fe.Tag()
	default:
		return "is invalid"
	}
}
