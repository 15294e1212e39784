package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"telephone-billing/internal/apperr"
	"telephone-billing/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const nonFieldErrors = "non_field_errors"

var registerTagNames sync.Once

// useJSONFieldNames makes validator report fields by their json name.
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// writeError renders err: validation failures as 400, anything else as 500.
//
// Failures that name a field render as {"field": ["msg"]}; field-less ones
// render as a bare message list.
func writeError(c *gin.Context, err error) {
	errs := apperr.Collect(err)
	if len(errs) == 0 {
		logger.FromGin(c).Error("request failed", "err", err)
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "A server error occurred."})
		return
	}

	fields := map[string][]string{}
	var messages []string
	for _, e := range errs {
		if e.Field == "" {
			messages = append(messages, e.Message)
			continue
		}
		fields[e.Field] = append(fields[e.Field], e.Message)
	}
	if len(fields) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, messages)
		return
	}
	if len(messages) > 0 {
		fields[nonFieldErrors] = messages
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, fields)
}

// writeBindError renders request decoding failures.
func writeBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := map[string][]string{}
		for _, fe := range verrs {
			fields[fe.Field()] = append(fields[fe.Field()], fieldMessage(fe))
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, fields)
		return
	}

	var perr *time.ParseError
	if errors.As(err, &perr) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"timestamp": []string{
			"Datetime has wrong format. Use one of these formats instead: YYYY-MM-DDThh:mm[:ss[.uuuuuu]][+HH:MM|-HH:MM|Z].",
		}})
		return
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{typeErr.Field: []string{"Invalid value."}})
		return
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "Malformed request: " + err.Error()})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "This field is required."
	case "oneof":
		return fmt.Sprintf("%q is not a valid choice.", fmt.Sprint(fe.Value()))
	case "gt", "gte":
		return "Ensure this value is greater than or equal to 1."
	default:
		return "Invalid value."
	}
}
