package database

import (
	"sync"

	"github.com/go-playground/validator"
)

var (
	validatorOnce sync.Once
	validate      *validator.Validate
)

func entryValidator() *validator.Validate {
	validatorOnce.Do(func() {
		validate = validator.New()
		if err := validate.RegisterValidation("timestamp", func(fl validator.FieldLevel) bool {
			_, err := ParseCapturedAt(fl.Field().String())
			return err == nil
		}); err != nil {
			panic(err)
		}
	})
	return validate
}
