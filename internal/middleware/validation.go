package middleware

import (
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"

	"server-imago/internal/schemas"
	"server-imago/internal/utils"
)

// ValidateAndSanitizeStruct binds the JSON body into a fresh T, sanitizes all
// string fields, and validates the struct. The sanitized payload is stored in
// the context for the handler. A fresh instance per request keeps concurrent
// requests from sharing the bound struct.
func ValidateAndSanitizeStruct[T any]() gin.HandlerFunc {
	return func(c *gin.Context) {
		obj := new(T)
		if err := c.ShouldBindJSON(obj); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, &schemas.ErrorDTO{Error: *schemas.BadRequest})
			return
		}

		sanitizeStrings(obj)

		if err := utils.GetValidator().Validate.Struct(obj); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, &schemas.ErrorDTO{Error: *schemas.BadRequest})
			return
		}

		c.Set(utils.SanitizedPayloadKey.String(), obj)
		c.Next()
	}
}

// sanitizeStrings strips markup from every settable string field of the struct
// pointed to by obj.
func sanitizeStrings(obj interface{}) {
	p := bluemonday.StrictPolicy()
	v := reflect.ValueOf(obj).Elem()
	if v.Kind() != reflect.Struct {
		return
	}

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() == reflect.String && field.CanSet() {
			field.SetString(p.Sanitize(field.String()))
		}
	}
}
