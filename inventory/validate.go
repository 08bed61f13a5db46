package inventory

import (
	"errors"
	"reflect"
	"slices"
	"strings"

	"Gin_postgres_redis_gear_kiosk/models"

	"github.com/go-playground/validator/v10"
)

// FieldError 一条校验错误，定位到变更集中的某一项和某个字段
type FieldError struct {
	Entity  string `json:"entity"` // user | gear
	Index   int    `json:"index"`
	ID      string `json:"id,omitempty"`
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

const (
	entityUser = "user"
	entityGear = "gear"
)

var ruleMessages = map[string]string{
	"required":  "is required",
	"max":       "is too long",
	"geartype":  "must be one of tank, regulator, bcd",
	"gearsize":  "is not an allowed size for this gear type",
	"unique":    "must be unique",
	"uuid":      "must be a uuid",
	"exists":    "already exists",
	"not_found": "does not exist",
	"op":        "must be create, update or delete",
}

func newFieldError(entity string, index int, id, field, rule string) FieldError {
	msg, ok := ruleMessages[rule]
	if !ok {
		msg = "is invalid"
	}
	return FieldError{Entity: entity, Index: index, ID: id, Field: field, Rule: rule, Message: field + " " + msg}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// 错误里使用 json 字段名
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("geartype", func(fl validator.FieldLevel) bool {
		return models.GearType(fl.Field().String()).Valid()
	})
	v.RegisterStructValidation(gearSizeLevel, GearEntry{})
	return v
}

// gearSizeLevel 尺寸必须在该类型允许的列表内；调节器不限
func gearSizeLevel(sl validator.StructLevel) {
	g := sl.Current().Interface().(GearEntry)
	if !g.Type.Valid() {
		return
	}
	allowed := g.Type.AllowedSizes()
	if allowed != nil && !slices.Contains(allowed, g.Size) {
		sl.ReportError(g.Size, "size", "Size", "gearsize", "")
	}
}

func fieldErrors(v *validator.Validate, entity string, index int, id string, entry any) []FieldError {
	err := v.Struct(entry)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{newFieldError(entity, index, id, "", err.Error())}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, newFieldError(entity, index, id, fe.Field(), fe.Tag()))
	}
	return out
}
