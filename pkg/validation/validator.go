package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	validate = validator.New()

	evmAddressPattern    = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	base58AddressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

	enumMu sync.Mutex
)

// ValidationError represents a validation error with field and message
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

func init() {
	// Report JSON names so errors line up with the GraphQL field names.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	validate.RegisterValidation("address", validateAddress)
	validate.RegisterValidation("networkid", validateNetworkID)
	validate.RegisterValidation("decimal", validateDecimal)
	validate.RegisterValidation("unixtime", validateUnixTime)
	validate.RegisterValidation("percentage", validatePercentage)
}

// RegisterEnum adds a tag that accepts the string values for which valid
// returns true. Enum types register themselves from their own package.
func RegisterEnum(tag string, valid func(string) bool) {
	enumMu.Lock()
	defer enumMu.Unlock()
	validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return valid(fl.Field().String())
	})
}

// IsAddress reports whether s looks like an EVM hex or Solana base58 address.
func IsAddress(s string) bool {
	return evmAddressPattern.MatchString(s) || base58AddressPattern.MatchString(s)
}

func validateAddress(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	return IsAddress(fl.Field().String())
}

func validateNetworkID(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64:
		return fl.Field().Int() > 0
	default:
		return false
	}
}

// validateDecimal accepts strings that parse as a decimal number.
func validateDecimal(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	_, err := decimal.NewFromString(fl.Field().String())
	return err == nil
}

// validateUnixTime accepts unix seconds that are positive and not more than
// a day in the future.
func validateUnixTime(fl validator.FieldLevel) bool {
	var ts int64
	switch fl.Field().Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64:
		ts = fl.Field().Int()
	default:
		return false
	}
	return ts > 0 && ts <= time.Now().Add(24*time.Hour).Unix()
}

func validatePercentage(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.Float64 {
		return false
	}
	p := fl.Field().Float()
	return p >= 0 && p <= 100
}

// ValidateStruct validates a struct using tags
func ValidateStruct(s interface{}) ValidationErrors {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{Field: "", Message: err.Error()}}
	}

	var out ValidationErrors
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fe.Namespace(),
			Message: getErrorMessage(fe.Field(), fe.Tag(), fe.Param()),
			Value:   fe.Value(),
		})
	}
	return out
}

// getErrorMessage returns a user-friendly error message
func getErrorMessage(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "address":
		return fmt.Sprintf("%s must be a valid EVM or base58 address", field)
	case "networkid":
		return fmt.Sprintf("%s must be a positive network id", field)
	case "decimal":
		return fmt.Sprintf("%s must be a decimal number", field)
	case "unixtime":
		return fmt.Sprintf("%s must be a unix timestamp not in the future", field)
	case "percentage":
		return fmt.Sprintf("%s must be between 0 and 100", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, param)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}

// ValidateMap validates a map[string]interface{} (e.g. a Redis stream
// entry) against field -> type expectations. Supported types are "string",
// "int", "float64" and "decimal"; numbers may arrive as strings.
func ValidateMap(data map[string]interface{}, schema map[string]string) ValidationErrors {
	var out ValidationErrors

	for field, expectedType := range schema {
		value, exists := data[field]
		if !exists {
			out = append(out, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%s is required", field),
			})
			continue
		}

		if err := validateFieldType(field, value, expectedType); err != nil {
			out = append(out, *err)
		}
	}

	return out
}

func validateFieldType(field string, value interface{}, expectedType string) *ValidationError {
	fail := func(msg string) *ValidationError {
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s %s", field, msg), Value: value}
	}

	switch expectedType {
	case "string":
		if _, ok := value.(string); !ok {
			return fail("must be a string")
		}
	case "int":
		switch v := value.(type) {
		case int, int64:
		case float64:
			if v != float64(int64(v)) {
				return fail("must be an integer")
			}
		case string:
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				return fail("must be a valid integer")
			}
		default:
			return fail("must be an integer")
		}
	case "float64":
		switch v := value.(type) {
		case float64, int, int64:
		case string:
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return fail("must be a valid number")
			}
		default:
			return fail("must be a number")
		}
	case "decimal":
		s, ok := value.(string)
		if !ok {
			return fail("must be a decimal string")
		}
		if _, err := decimal.NewFromString(s); err != nil {
			return fail("must be a decimal number")
		}
	}

	return nil
}

// SanitizeString removes potentially dangerous characters
func SanitizeString(s string) string {
	// Remove null bytes and control characters
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 { // Keep tab, newline, carriage return
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

// SanitizeAddress trims the address and lowercases EVM hex addresses.
// Base58 addresses are case sensitive and left alone.
func SanitizeAddress(s string) string {
	s = strings.TrimSpace(s)
	if evmAddressPattern.MatchString(s) {
		return strings.ToLower(s)
	}
	return s
}

// SanitizePercentage clamps p into [0, 100].
func SanitizePercentage(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
