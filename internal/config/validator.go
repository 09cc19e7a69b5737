package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, e[i].Error())
	}
	return sb.String()
}

// Validator validates gateway configuration. Struct tags are checked by
// go-playground/validator; cross-field rules are checked afterwards.
type Validator struct {
	validate *validator.Validate
	errors   ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// ValidateConfig validates a gateway configuration.
func ValidateConfig(cfg *GatewayConfig) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration and returns ValidationErrors on failure.
func (v *Validator) Validate(cfg *GatewayConfig) error {
	v.errors = nil

	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	if err := v.validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			v.addError(trimRoot(fe.Namespace()), describe(fe))
		}
	}

	v.validateServices(cfg.Services)
	v.validateRateLimit(&cfg.RateLimit)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) validateServices(services []ServiceConfig) {
	names := make(map[string]int, len(services))
	for i, svc := range services {
		path := fmt.Sprintf("services[%d]", i)
		if prev, ok := names[svc.Name]; ok && svc.Name != "" {
			v.addError(path+".name", fmt.Sprintf("duplicate service name %q (also services[%d])", svc.Name, prev))
		}
		names[svc.Name] = i

		if len(svc.Prefix) > 1 && strings.HasSuffix(svc.Prefix, "/") {
			v.addError(path+".prefix", "must not end with '/'")
		}

		for j := 0; j < i; j++ {
			if PrefixesOverlap(services[j].Prefix, svc.Prefix) {
				v.addError(path+".prefix",
					fmt.Sprintf("prefix %q overlaps %q of service %q", svc.Prefix, services[j].Prefix, services[j].Name))
			}
		}
	}
}

func (v *Validator) validateRateLimit(rl *RateLimitConfig) {
	if rl.Store == StoreRedis && rl.Redis.Address == "" {
		v.addError("rateLimit.redis.address", "required when store is redis")
	}
	if rl.Algorithm == AlgorithmTokenBucket && rl.Store == StoreRedis {
		v.addError("rateLimit.algorithm", "token_bucket only supports the memory store")
	}
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

// PrefixesOverlap reports whether a request path could match both prefixes
// under segment-boundary matching.
func PrefixesOverlap(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	if !strings.HasPrefix(b, a) {
		return false
	}
	return len(a) == len(b) || a == "/" || b[len(a)] == '/'
}

func trimRoot(namespace string) string {
	if idx := strings.IndexByte(namespace, '.'); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "url":
		return "must be an absolute URL"
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("must be %s %s", fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
