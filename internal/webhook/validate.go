package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeAndValidate decodes the request body into dst and runs struct tag
// validation, returning a request-layer-local error the caller turns into
// a 400 with a voice-friendly message.
func decodeAndValidate(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errMissingInformation, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", errMissingInformation, err)
	}
	return nil
}

func normalizeAUPhone(raw string) string {
	digits := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}
	s := string(digits)
	switch {
	case len(s) == 10 && s[0] == '0':
		return "+61" + s[1:]
	case len(s) == 9:
		return "+61" + s
	case len(s) >= 11 && s[:2] == "61":
		return "+" + s
	default:
		return "+" + s
	}
}
