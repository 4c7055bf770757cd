package service

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"

	"github.com/go-playground/validator/v10"
)

// ============================================================
// Request validation (go-playground/validator + custom tags)
// ============================================================

var (
	validate = newValidator()

	instanceNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{2,63}$`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report json names so messages match the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("cnpj", func(fl validator.FieldLevel) bool {
		return ValidCNPJ(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return NormalizePhone(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("instancename", func(fl validator.FieldLevel) bool {
		return instanceNameRe.MatchString(fl.Field().String())
	})
	return v
}

// Validate checks a request struct and returns the first violation as
// *domain.ErrValidation.
func Validate(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &domain.ErrValidation{Field: "body", Message: err.Error()}
	}

	fe := verrs[0]
	return &domain.ErrValidation{Field: fieldPath(fe), Message: messageFor(fe)}
}

// fieldPath drops the struct name: "CreateGroupRequest.participants[1]" -> "participants[1]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Campo obrigatório"
	case "min":
		if fe.Kind() == reflect.Slice {
			return "Informe ao menos " + fe.Param() + " item(ns)"
		}
		return "Mínimo de " + fe.Param() + " caracteres"
	case "max":
		if fe.Kind() == reflect.Slice {
			return "Máximo de " + fe.Param() + " itens"
		}
		return "Máximo de " + fe.Param() + " caracteres"
	case "len":
		return "Deve ter " + fe.Param() + " caracteres"
	case "email":
		return "E-mail inválido"
	case "url":
		return "URL inválida"
	case "oneof":
		return "Valor deve ser um de: " + fe.Param()
	case "unique":
		return "Itens duplicados"
	case "uppercase":
		return "Deve estar em maiúsculas"
	case "cnpj":
		return "CNPJ inválido"
	case "phone":
		return "Telefone inválido, use DDI + DDD + número"
	case "instancename":
		return "Use de 3 a 64 letras, números, '-' ou '_'"
	default:
		return "Valor inválido"
	}
}

// OnlyDigits strips every non-digit character.
func OnlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone returns the digits of an international phone number
// (country code + area code + number), or "" when it cannot be one.
func NormalizePhone(s string) string {
	for _, r := range s {
		if !strings.ContainsRune("0123456789+-() .", r) {
			return ""
		}
	}
	d := OnlyDigits(s)
	if len(d) < 10 || len(d) > 15 {
		return ""
	}
	return d
}

// ValidCNPJ checks length and both check digits. Punctuation is ignored.
func ValidCNPJ(s string) bool {
	d := OnlyDigits(s)
	if len(d) != 14 {
		return false
	}
	if strings.Count(d, d[:1]) == 14 {
		return false
	}

	checkDigit := func(digits string, weights []int) byte {
		sum := 0
		for i, w := range weights {
			sum += int(digits[i]-'0') * w
		}
		r := sum % 11
		if r < 2 {
			return '0'
		}
		return byte('0' + 11 - r)
	}

	w1 := []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	w2 := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	return checkDigit(d, w1) == d[12] && checkDigit(d, w2) == d[13]
}
