// Package validation checks client records before they are uploaded from an
// interactive session. Embedded backups are not validated.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/luizfilipeschaeffer/market-dashboard/internal/models"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	cnpjPattern  = regexp.MustCompile(`^\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}$`)
)

// clientFields mirrors the validated part of models.ClientRecord. Only the
// first failing rule of a field is reported.
type clientFields struct {
	Name          string `field:"name" validate:"notblank"`
	Email         string `field:"email" validate:"notblank,basic_email"`
	CNPJ          string `field:"cnpj" validate:"notblank,cnpj"`
	InclusionDate string `field:"inclusionDate" validate:"notblank"`
}

// Issue is one failed rule for one record.
type Issue struct {
	Row   int
	Field string
	Rule  string
}

func (i Issue) String() string {
	switch i.Rule {
	case "notblank":
		return fmt.Sprintf("row %d: %s is required", i.Row, i.Field)
	case "cnpj":
		return fmt.Sprintf("row %d: cnpj is invalid (expected format XX.XXX.XXX/XXXX-XX)", i.Row)
	default:
		return fmt.Sprintf("row %d: %s is invalid", i.Row, i.Field)
	}
}

type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("field")
	})
	mustRegister(v, "notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	mustRegister(v, "basic_email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "cnpj", func(fl validator.FieldLevel) bool {
		return cnpjPattern.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("registering %s validation: %v", tag, err))
	}
}

// Check returns every issue found, in record order. Row is the 1-based
// position of the record in clients.
func (val *Validator) Check(clients []models.ClientRecord) []Issue {
	var issues []Issue
	for i, c := range clients {
		err := val.v.Struct(clientFields{
			Name:          c.Name,
			Email:         c.Email,
			CNPJ:          c.CNPJ,
			InclusionDate: c.InclusionDate,
		})
		if err == nil {
			continue
		}
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			issues = append(issues, Issue{Row: i + 1, Field: "record", Rule: "invalid"})
			continue
		}
		for _, fe := range fieldErrs {
			issues = append(issues, Issue{Row: i + 1, Field: fe.Field(), Rule: fe.Tag()})
		}
	}
	return issues
}

// Validate renders Check as human readable messages.
func (val *Validator) Validate(clients []models.ClientRecord) []string {
	issues := val.Check(clients)
	if len(issues) == 0 {
		return nil
	}
	msgs := make([]string, len(issues))
	for i, is := range issues {
		msgs[i] = is.String()
	}
	return msgs
}
