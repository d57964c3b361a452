// Package validation checks externally supplied payloads against per-operation
// schemas before any side-effecting call is made. Validation is pure: it
// returns either the normalized typed payload or a list of field errors.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrValidationFailed is wrapped by every *Error.
var ErrValidationFailed = errors.New("validation failed")

// FieldError describes one failed constraint. Field uses JSON names with
// dots for nesting and brackets for indices, e.g. "items[0].quantity".
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result is the outcome of validating one payload.
type Result struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// Err returns nil on success, otherwise an *Error carrying the field errors.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return &Error{Fields: r.Errors}
}

// Error is returned when a payload does not conform to its schema.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Field == "" {
			parts = append(parts, f.Message)
			continue
		}
		parts = append(parts, f.Field+" "+f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrValidationFailed.Error(), strings.Join(parts, "; "))
}

func (e *Error) Unwrap() error {
	return ErrValidationFailed
}

// Validator validates payloads against the registered schemas.
// It is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator with JSON field naming and the password rule registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("password", validatePassword)

	return &Validator{validate: v}
}

var defaultValidator = New()

// Validate checks data against the named schema using the package default Validator.
func Validate(schema Name, data any) Result {
	return defaultValidator.Validate(schema, data)
}

// Validate decodes data into the schema's type and checks its constraints.
// data may be raw JSON ([]byte or json.RawMessage) or any value that
// marshals to JSON, typically a sanitized map[string]any.
func (v *Validator) Validate(schema Name, data any) Result {
	newPayload, ok := registry[schema]
	if !ok {
		return failure(FieldError{Message: fmt.Sprintf("unknown schema %q", schema)})
	}

	raw, err := toJSON(data)
	if err != nil {
		return failure(FieldError{Message: "payload must be a JSON object"})
	}

	// json reports only the earliest type mismatch but still decodes the
	// rest of the payload, so constraint checks run on everything else.
	var fields []FieldError
	var mismatch string
	payload := newPayload()
	if err := json.Unmarshal(raw, payload); err != nil {
		fe := decodeError(raw, err)
		if fe.Field == "" {
			return failure(fe)
		}
		fields = append(fields, fe)
		mismatch = fe.Field
	}

	if d, ok := payload.(defaulter); ok {
		d.applyDefaults()
	}

	if err := v.validate.Struct(payload); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return failure(FieldError{Message: err.Error()})
		}
		for _, fe := range verrs {
			path := fieldPath(fe)
			if mismatch != "" && within(path, mismatch) {
				continue
			}
			fields = append(fields, FieldError{
				Field:   path,
				Message: formatValidationError(fe),
			})
		}
	}

	if len(fields) > 0 {
		return Result{Success: false, Errors: fields}
	}
	return Result{Success: true, Data: payload}
}

// within reports whether path is field itself or nested below it.
func within(path, field string) bool {
	if !strings.HasPrefix(path, field) {
		return false
	}
	rest := path[len(field):]
	return rest == "" || rest[0] == '.' || rest[0] == '['
}

func failure(fe FieldError) Result {
	return Result{Success: false, Errors: []FieldError{fe}}
}

func toJSON(data any) ([]byte, error) {
	switch d := data.(type) {
	case nil:
		return nil, errors.New("nil payload")
	case []byte:
		return d, nil
	case json.RawMessage:
		return d, nil
	default:
		return json.Marshal(d)
	}
}

// decodeError converts a JSON decoding failure into a field error. A type
// mismatch at the root comes back with an empty Field.
func decodeError(raw []byte, err error) FieldError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := valuePathAt(raw, typeErr.Offset)
		if field == "" {
			field = typeErr.Field
		}
		return FieldError{
			Field:   field,
			Message: "must be " + describeKind(typeErr.Type),
		}
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return FieldError{Message: "payload is not valid JSON"}
	}

	return FieldError{Message: "payload must be a JSON object"}
}

type pathFrame struct {
	object  bool
	wantKey bool
	key     string
	index   int
}

func (f *pathFrame) next() {
	if f.object {
		f.wantKey = true
	} else {
		f.index++
	}
}

// valuePathAt walks raw token by token and returns the indexed path, such as
// "items[0].quantity", of the first value that ends at or after offset.
// json.UnmarshalTypeError reports its Offset just past the offending token.
func valuePathAt(raw []byte, offset int64) string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	var stack []*pathFrame

	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}

		if d, ok := tok.(json.Delim); ok && (d == '}' || d == ']') {
			stack = stack[:len(stack)-1]
			if len(stack) > 0 {
				stack[len(stack)-1].next()
			}
			continue
		}

		var top *pathFrame
		if len(stack) > 0 {
			top = stack[len(stack)-1]
		}
		if top != nil && top.object && top.wantKey {
			top.key, _ = tok.(string)
			top.wantKey = false
			continue
		}

		if dec.InputOffset() >= offset {
			return joinPath(stack)
		}

		if d, ok := tok.(json.Delim); ok {
			stack = append(stack, &pathFrame{object: d == '{', wantKey: d == '{'})
			continue
		}
		if top != nil {
			top.next()
		}
	}
}

func joinPath(stack []*pathFrame) string {
	var b strings.Builder
	for _, f := range stack {
		if f.object {
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(f.key)
		} else {
			fmt.Fprintf(&b, "[%d]", f.index)
		}
	}
	return b.String()
}

func describeKind(t reflect.Type) string {
	if t == nil {
		return "a valid value"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "an integer"
	case reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Slice, reflect.Array:
		return "an array"
	case reflect.Map, reflect.Struct:
		return "an object"
	default:
		return "a valid value"
	}
}

// fieldPath strips the root struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// formatValidationError creates a user-facing message for a failed tag.
func formatValidationError(fe validator.FieldError) string {
	kind := fe.Kind()
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid":
		return "must be a valid UUID"
	case "url":
		return "must be a valid URL"
	case "e164":
		return "must be a valid phone number in E.164 format"
	case "alpha":
		return "must contain only letters"
	case "datetime":
		return "must be a valid RFC 3339 date-time"
	case "password":
		return "must contain an uppercase letter, a lowercase letter, a digit and a symbol"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.Join(strings.Fields(fe.Param()), ", "))
	case "len":
		if kind == reflect.String {
			return fmt.Sprintf("must be exactly %s characters", fe.Param())
		}
		return fmt.Sprintf("must contain exactly %s items", fe.Param())
	case "min", "gte":
		switch kind {
		case reflect.String:
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		case reflect.Slice, reflect.Array, reflect.Map:
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		default:
			return fmt.Sprintf("must be at least %s", fe.Param())
		}
	case "max", "lte":
		switch kind {
		case reflect.String:
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		case reflect.Slice, reflect.Array, reflect.Map:
			return fmt.Sprintf("must contain at most %s item(s)", fe.Param())
		default:
			return fmt.Sprintf("must be at most %s", fe.Param())
		}
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	default:
		return fmt.Sprintf("failed on the '%s' rule", fe.Tag())
	}
}

// validatePassword requires an uppercase letter, a lowercase letter, a digit
// and a symbol. Letters and digits are ASCII; any other rune, including
// spaces and accented letters, counts as a symbol. Length is enforced
// separately by min/max.
func validatePassword(fl validator.FieldLevel) bool {
	var upper, lower, digit, symbol bool
	for _, r := range fl.Field().String() {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}
