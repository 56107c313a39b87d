package api

import (
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"iesb-saude-portal/internal/appointment"
	"iesb-saude-portal/internal/parse"
)

var registerOnce sync.Once

// registerValidators adds the portal's wire formats to gin's validator and
// makes errors report JSON or query names.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
		v.RegisterValidation("portal_date", func(fl validator.FieldLevel) bool {
			_, err := parse.Date(fl.Field().String(), time.UTC)
			return err == nil
		})
		v.RegisterValidation("portal_month", func(fl validator.FieldLevel) bool {
			_, err := parse.Month(fl.Field().String(), time.UTC)
			return err == nil
		})
		v.RegisterValidation("appointment_status", func(fl validator.FieldLevel) bool {
			_, err := appointment.ParseStatus(fl.Field().String())
			return err == nil
		})
	})
}
