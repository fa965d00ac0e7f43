// Package request binds and validates HTTP request models.
// Models use `default` tags (creasty/defaults) and `validate` tags
// (go-playground/validator).
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// maxBodyBytes caps decoded request bodies
const maxBodyBytes = 1 << 20

// Decode applies defaults, decodes an optional JSON body into dst and validates it.
func Decode(r *http.Request, dst any) error {
	if err := defaults.Set(dst); err != nil {
		return fmt.Errorf("failed to apply defaults: %w", err)
	}

	if r.Body != nil {
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("invalid request body: %w", err)
		}
	}

	return Validate(dst)
}

// Defaults applies `default` tags to dst
func Defaults(dst any) error {
	return defaults.Set(dst)
}

// Validate checks `validate` tags and flattens failures into one message.
func Validate(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", strings.ToLower(fe.Field()), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
