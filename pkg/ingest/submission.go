package ingest

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// MandatoryKeys are the submission keys that must be present and
// non-empty, in the order they are checked.
var MandatoryKeys = []string{
	"commitid",
	"project",
	"executable_name",
	"benchmark",
	"environment",
	"result_value",
}

// dateLayouts are the accepted formats of revision_date and result_date.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Submission is one benchmark result as posted by a runner.
type Submission struct {
	CommitID           string     `mapstructure:"commitid" json:"commitid"`
	Project            string     `mapstructure:"project" json:"project"`
	ExecutableName     string     `mapstructure:"executable_name" json:"executable_name"`
	ExecutableCoptions string     `mapstructure:"executable_coptions" json:"executable_coptions,omitempty"`
	Benchmark          string     `mapstructure:"benchmark" json:"benchmark"`
	Environment        string     `mapstructure:"environment" json:"environment"`
	ResultValue        float64    `mapstructure:"result_value" json:"result_value"`
	StdDev             *float64   `mapstructure:"std_dev" json:"std_dev,omitempty"`
	Min                *float64   `mapstructure:"min" json:"min,omitempty"`
	Max                *float64   `mapstructure:"max" json:"max,omitempty"`
	RevisionDate       *time.Time `mapstructure:"revision_date" json:"revision_date,omitempty"`
	ResultDate         *time.Time `mapstructure:"result_date" json:"result_date,omitempty"`
}

// ErrNonFinite is returned for a measured value that is NaN or infinite.
var ErrNonFinite = errors.New("value must be a finite number")

// KeyError reports a mandatory key that is missing or empty.
type KeyError struct {
	Key   string
	Empty bool
}

func (e *KeyError) Error() string {
	if e.Empty {
		return fmt.Sprintf("Key %q empty in request", e.Key)
	}

	return fmt.Sprintf("Key %q missing from request", e.Key)
}

// FromValues flattens form values, keeping the first value of each key.
func FromValues(values url.Values) map[string]any {
	out := make(map[string]any, len(values))

	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}

	return out
}

// Decode checks the mandatory keys of raw and decodes it. Numbers and
// dates may be given as strings.
func Decode(raw map[string]any) (*Submission, error) {
	for _, key := range MandatoryKeys {
		v, ok := raw[key]
		if !ok {
			return nil, &KeyError{Key: key}
		}

		if v == nil {
			return nil, &KeyError{Key: key, Empty: true}
		}

		if s, isString := v.(string); isString && s == "" {
			return nil, &KeyError{Key: key, Empty: true}
		}
	}

	var sub Submission

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       stringToTimeHook,
		WeaklyTypedInput: true,
		Result:           &sub,
	})
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decoding submission: %w", err)
	}

	if err := sub.checkFinite(); err != nil {
		return nil, err
	}

	return &sub, nil
}

// checkFinite rejects NaN and infinite measurements, which the weak string
// decoding would otherwise accept.
func (s *Submission) checkFinite() error {
	values := []struct {
		key string
		v   *float64
	}{
		{"result_value", &s.ResultValue},
		{"std_dev", s.StdDev},
		{"min", s.Min},
		{"max", s.Max},
	}

	for _, value := range values {
		if value.v == nil {
			continue
		}

		if math.IsNaN(*value.v) || math.IsInf(*value.v, 0) {
			return fmt.Errorf("%w: %s is %v", ErrNonFinite, value.key, *value.v)
		}
	}

	return nil
}

func stringToTimeHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}

	s, _ := data.(string)

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return nil, fmt.Errorf("unrecognised date %q", s)
}
