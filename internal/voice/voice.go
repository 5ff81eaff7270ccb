// Package voice resolves a tenant's optional voice block onto the platform
// baseline, field by field. A missing field keeps the baseline value; an
// out-of-range field is reported and replaced with the baseline value, never
// failing the block as a whole.
package voice

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/smiledesk/smiledesk/agent-plane/pkg/models"
)

// Baseline TTS parameters. Every resolved parameter set starts from these.
const (
	DefaultVoiceID         = "rfkTsdZrVWEVhDycUYn9"
	DefaultModel           = "eleven_multilingual_v2"
	DefaultStability       = 0.6
	DefaultSimilarityBoost = 0.8
	DefaultSpeed           = 0.87
	DefaultUseSpeakerBoost = true
)

// Sanity ranges for the numeric settings.
const (
	MinStability = 0.0
	MaxStability = 1.0
	MinSpeed     = 0.5
	MaxSpeed     = 1.5
)

// ConfigError reports one voice setting outside its documented range. The
// field in question falls back to the baseline; resolution continues.
type ConfigError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("voice setting %s=%g outside [%g, %g], using default", e.Field, e.Value, e.Min, e.Max)
}

// Baseline returns the documented default parameter set.
func Baseline() models.VoiceParameters {
	return models.VoiceParameters{
		VoiceID:         DefaultVoiceID,
		Model:           DefaultModel,
		Stability:       DefaultStability,
		SimilarityBoost: DefaultSimilarityBoost,
		Speed:           DefaultSpeed,
		UseSpeakerBoost: DefaultUseSpeakerBoost,
	}
}

// Resolve merges the tenant's voice block onto the baseline. A nil block
// yields the baseline unchanged. The returned parameters are always usable;
// the error, when non-nil, is a join of one *ConfigError per rejected field.
func Resolve(block *models.VoiceConfig) (models.VoiceParameters, error) {
	params := Baseline()
	if block == nil {
		return params, nil
	}

	if block.VoiceID != "" {
		params.VoiceID = block.VoiceID
	}
	if block.Model != "" {
		params.Model = block.Model
	}

	if block.Settings == nil {
		return params, nil
	}

	var errs []error
	if v := block.Settings.Stability; v != nil {
		if *v < MinStability || *v > MaxStability {
			errs = append(errs, reject("stability", *v, MinStability, MaxStability))
		} else {
			params.Stability = *v
		}
	}
	if v := block.Settings.SimilarityBoost; v != nil {
		if *v < MinStability || *v > MaxStability {
			errs = append(errs, reject("similarity_boost", *v, MinStability, MaxStability))
		} else {
			params.SimilarityBoost = *v
		}
	}
	if v := block.Settings.Speed; v != nil {
		if *v < MinSpeed || *v > MaxSpeed {
			errs = append(errs, reject("speed", *v, MinSpeed, MaxSpeed))
		} else {
			params.Speed = *v
		}
	}
	if v := block.Settings.UseSpeakerBoost; v != nil {
		params.UseSpeakerBoost = *v
	}

	return params, errors.Join(errs...)
}

// FieldErrors extracts the per-field rejections from a Resolve error.
func FieldErrors(err error) []*ConfigError {
	if err == nil {
		return nil
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		var ce *ConfigError
		if errors.As(err, &ce) {
			return []*ConfigError{ce}
		}
		return nil
	}
	var out []*ConfigError
	for _, e := range joined.Unwrap() {
		var ce *ConfigError
		if errors.As(e, &ce) {
			out = append(out, ce)
		}
	}
	return out
}

func reject(field string, value, min, max float64) *ConfigError {
	err := &ConfigError{Field: field, Value: value, Min: min, Max: max}
	log.Warn().Str("field", field).Float64("value", value).Msg("Voice setting out of range, using default")
	return err
}
