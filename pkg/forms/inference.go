package forms

import (
	"fmt"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"

	apimodels "github.com/amrdata/amrportal/pkg/api/types/models"
)

// ParseInference builds model inputs from form values, following the model's field schema.
//
// Values are converted to their field types: float64 for number, int64 for integer,
// bool for boolean and string for string. Empty optional fields are omitted.
// A boolean field is false when it is not submitted (unchecked checkbox).
func ParseInference(fields []apimodels.Field, v url.Values) (map[string]any, Errors) {
	errs := Errors{}
	inputs := map[string]any{}

	for _, f := range fields {
		raw := strings.TrimSpace(v.Get(f.Name))

		if f.Type == apimodels.Boolean {
			inputs[f.Name] = checked(v, f.Name)
			continue
		}

		if raw == "" {
			if f.Required {
				errs.Add(f.Name, msgRequired)
			}
			continue
		}

		if len(f.Options) != 0 && !slices.Contains(f.Options, raw) {
			errs.Add(f.Name, fmt.Sprintf("Choose one of %s.", strings.Join(f.Options, ", ")))
			continue
		}

		switch f.Type {
		case apimodels.Number:
			n, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
				errs.Add(f.Name, "Enter a number.")
				continue
			}
			if msg := checkRange(f, n); msg != "" {
				errs.Add(f.Name, msg)
				continue
			}
			inputs[f.Name] = n
		case apimodels.Integer:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				errs.Add(f.Name, "Enter a whole number.")
				continue
			}
			if msg := checkRange(f, float64(n)); msg != "" {
				errs.Add(f.Name, msg)
				continue
			}
			inputs[f.Name] = n
		default:
			if f.MaxLength != nil && *f.MaxLength < length(raw) {
				errs.Add(f.Name, fmt.Sprintf("Use at most %d characters.", *f.MaxLength))
				continue
			}
			inputs[f.Name] = raw
		}
	}
	return inputs, errs
}

func checkRange(f apimodels.Field, n float64) string {
	if f.Minimum != nil && n < *f.Minimum {
		return fmt.Sprintf("Must be at least %s.", strconv.FormatFloat(*f.Minimum, 'f', -1, 64))
	}
	if f.Maximum != nil && *f.Maximum < n {
		return fmt.Sprintf("Must be at most %s.", strconv.FormatFloat(*f.Maximum, 'f', -1, 64))
	}
	return ""
}
