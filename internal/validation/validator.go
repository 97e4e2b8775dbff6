// Package validation はリクエストDTOの入力検証を提供する。
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator はgo-playground/validatorにカスタムルールを登録したラッパー。
type Validator struct {
	validate *validator.Validate
}

// New はValidatorを生成する。エラーのフィールド名にはjsonタグ名を使う。
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// notblank は空白のみの文字列を拒否する
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	return &Validator{validate: v}
}

// Struct は構造体のタグに従って検証する。違反があれば*Errorを返す。
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate: %w", err)
	}
	return newError(verrs)
}

// FieldError は1フィールド分の検証エラー。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error は検証エラーの一覧。フィールド名の昇順に並ぶ。
type Error struct {
	Fields []FieldError `json:"fields"`
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, ", ")
}

// Add はフィールドエラーを追加する。フィールド名の昇順を保つ。
func (e *Error) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
	sort.SliceStable(e.Fields, func(i, j int) bool { return e.Fields[i].Field < e.Fields[j].Field })
}

func newError(verrs validator.ValidationErrors) *Error {
	out := &Error{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	sort.SliceStable(out.Fields, func(i, j int) bool { return out.Fields[i].Field < out.Fields[j].Field })
	return out
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%sは必須です", field)
	case "max":
		return fmt.Sprintf("%sは%s以下にしてください", field, fe.Param())
	case "min":
		return fmt.Sprintf("%sは%s以上にしてください", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%sは%s以上にしてください", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%sは%s以下にしてください", field, fe.Param())
	case "latitude", "longitude":
		return fmt.Sprintf("%sの値が範囲外です", field)
	case "oneof":
		return fmt.Sprintf("%sは次のいずれかにしてください: %s", field, fe.Param())
	case "gtfield":
		return fmt.Sprintf("%sは%sより後にしてください", field, fe.Param())
	case "required_with":
		return fmt.Sprintf("%sは%sと一緒に指定してください", field, fe.Param())
	case "email":
		return fmt.Sprintf("%sはメールアドレスの形式にしてください", field)
	default:
		return fmt.Sprintf("%sが正しくありません", field)
	}
}
