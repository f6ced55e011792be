package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Tag keys reserved for the orchestrator's own bookkeeping. User
// configuration may not set them.
const (
	TagKeySolution          = "forecastkit:solution"
	TagKeyFingerprint       = "forecastkit:fingerprint"
	TagKeyConfigFingerprint = "forecastkit:config-fingerprint"
)

var reservedTagKeys = map[string]bool{
	TagKeySolution:          true,
	TagKeyFingerprint:       true,
	TagKeyConfigFingerprint: true,
}

var validate = validator.New()

// Resolve merges the Default, named, and override layers of a configuration
// document into one EffectiveConfig for target. Layering is
// Default < named < document Override < explicit override: scalar keys
// replace, list-valued keys (Datasets, Tags) replace wholesale, and a
// Datasets {From: X} reference splices fragment X's dataset list verbatim
// before local entries. The merged result is validated eagerly; any problem
// is a fatal ValidationError carrying the offending key path.
func Resolve(doc Document, target string, override *Fragment) (*EffectiveConfig, error) {
	if target == DefaultKey || target == OverrideKey {
		return nil, &ValidationError{Target: target, KeyPath: target, Message: "is not a resolvable fragment name"}
	}
	named, ok := doc[target]
	if !ok {
		return nil, &ValidationError{Target: target, KeyPath: target, Message: "no fragment with this name in the configuration document"}
	}

	merged := &Fragment{}
	layers := []*Fragment{doc[DefaultKey], named, doc[OverrideKey], override}
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		if err := applyLayer(merged, layer, doc, target); err != nil {
			return nil, err
		}
	}

	return buildEffective(merged, target)
}

// applyLayer copies the set keys of src over dst. Unset keys in src leave
// dst untouched.
func applyLayer(dst, src *Fragment, doc Document, target string) error {
	if src.DatasetGroup != nil {
		dg := *src.DatasetGroup
		dst.DatasetGroup = &dg
	}
	if src.Predictor != nil {
		p := *src.Predictor
		dst.Predictor = &p
	}
	if src.Forecast != nil {
		f := *src.Forecast
		dst.Forecast = &f
	}
	if src.Tags != nil {
		dst.Tags = append([]Tag(nil), src.Tags...)
	}
	if src.Datasets != nil {
		items, err := spliceDatasets(src.Datasets, doc, target)
		if err != nil {
			return err
		}
		dst.Datasets = &DatasetsSpec{Items: items}
	}
	return nil
}

// spliceDatasets expands a Datasets spec into a concrete list. A From
// reference copies the referenced fragment's dataset list verbatim, then
// appends the local entries.
func spliceDatasets(spec *DatasetsSpec, doc Document, target string) ([]DatasetSpec, error) {
	if spec.From == "" {
		return append([]DatasetSpec(nil), spec.Items...), nil
	}

	source, ok := doc[spec.From]
	if !ok || source == nil || source.Datasets == nil {
		return nil, &ValidationError{
			Target:  target,
			KeyPath: target + ".Datasets.From",
			Message: fmt.Sprintf("references %q but no Datasets configuration exists for that fragment", spec.From),
		}
	}
	if source.Datasets.From != "" {
		return nil, &ValidationError{
			Target:  target,
			KeyPath: target + ".Datasets.From",
			Message: fmt.Sprintf("fragment %q itself uses From; chained references are not supported", spec.From),
		}
	}

	items := append([]DatasetSpec(nil), source.Datasets.Items...)
	return append(items, spec.Items...), nil
}

// buildEffective validates the merged fragment and produces the effective
// configuration.
func buildEffective(merged *Fragment, target string) (*EffectiveConfig, error) {
	if merged.DatasetGroup == nil {
		return nil, &ValidationError{Target: target, KeyPath: target + ".DatasetGroup", Message: "missing required key"}
	}
	if merged.Datasets == nil || len(merged.Datasets.Items) == 0 {
		return nil, &ValidationError{Target: target, KeyPath: target + ".Datasets", Message: "missing required key"}
	}
	if merged.Predictor == nil {
		return nil, &ValidationError{Target: target, KeyPath: target + ".Predictor", Message: "missing required key"}
	}
	if merged.Forecast == nil {
		return nil, &ValidationError{Target: target, KeyPath: target + ".Forecast", Message: "missing required key"}
	}
	if merged.DatasetGroup.Domain == "" {
		return nil, &ValidationError{Target: target, KeyPath: target + ".DatasetGroup.Domain", Message: "dataset group domain must be set"}
	}

	eff := &EffectiveConfig{
		Name:             target,
		Domain:           merged.DatasetGroup.Domain,
		Datasets:         append([]DatasetSpec(nil), merged.Datasets.Items...),
		Predictor:        *merged.Predictor,
		Forecast:         *merged.Forecast,
		GlobalTags:       merged.Tags,
		DatasetGroupTags: merged.DatasetGroup.Tags,
	}

	if err := validateDatasets(eff, target); err != nil {
		return nil, err
	}
	if err := validatePredictor(&eff.Predictor, target); err != nil {
		return nil, err
	}
	if len(eff.Forecast.ForecastTypes) == 0 {
		return nil, &ValidationError{Target: target, KeyPath: target + ".Forecast.ForecastTypes", Message: "at least one forecast type (quantile) is required"}
	}
	for _, tags := range [][]Tag{eff.GlobalTags, eff.DatasetGroupTags, eff.Predictor.Tags, eff.Forecast.Tags} {
		if err := validateTags(tags, target); err != nil {
			return nil, err
		}
	}

	return eff, nil
}

func validateDatasets(eff *EffectiveConfig, target string) error {
	seen := make(map[string]bool, len(eff.Datasets))
	targets := 0

	for i := range eff.Datasets {
		ds := &eff.Datasets[i]
		path := fmt.Sprintf("%s.Datasets[%d]", target, i)

		if err := validate.Struct(ds); err != nil {
			return fieldError(err, target, path)
		}
		if seen[ds.DatasetType] {
			return &ValidationError{Target: target, KeyPath: path + ".DatasetType", Message: fmt.Sprintf("duplicate dataset type %s", ds.DatasetType)}
		}
		seen[ds.DatasetType] = true
		if ds.DatasetType == TargetTimeSeries {
			targets++
		}

		// Dataset domain defaults to the group domain and must match it
		// when set explicitly.
		if ds.Domain == "" {
			ds.Domain = eff.Domain
		} else if ds.Domain != eff.Domain {
			return &ValidationError{
				Target:  target,
				KeyPath: path + ".Domain",
				Message: fmt.Sprintf("dataset domain (%s) must match the dataset group domain (%s)", ds.Domain, eff.Domain),
			}
		}

		if len(ds.Schema.Attributes) == 0 {
			return &ValidationError{Target: target, KeyPath: path + ".Schema.Attributes", Message: "schema must declare at least one attribute"}
		}
		if ds.DatasetType != ItemMetadata {
			timestamps := 0
			for _, attr := range ds.Schema.Attributes {
				if attr.AttributeType == "timestamp" {
					timestamps++
				}
			}
			if timestamps != 1 {
				return &ValidationError{
					Target:  target,
					KeyPath: path + ".Schema.Attributes",
					Message: fmt.Sprintf("schema must contain exactly one timestamp attribute, found %d", timestamps),
				}
			}
		}

		if err := validateTags(ds.Tags, target); err != nil {
			return err
		}
	}

	if targets == 0 {
		return &ValidationError{Target: target, KeyPath: target + ".Datasets", Message: "a TARGET_TIME_SERIES dataset must be configured"}
	}
	return nil
}

func validatePredictor(p *PredictorSpec, target string) error {
	if err := validate.Struct(p); err != nil {
		return fieldError(err, target, target+".Predictor")
	}
	if p.ForecastHorizon <= 0 {
		return &ValidationError{Target: target, KeyPath: target + ".Predictor.ForecastHorizon", Message: "forecast horizon must be set and positive"}
	}
	return nil
}

func validateTags(tags []Tag, target string) error {
	seen := make(map[string]bool, len(tags))
	for i, tag := range tags {
		path := fmt.Sprintf("%s.Tags[%d]", target, i)
		if tag.Key == "" {
			return &ValidationError{Target: target, KeyPath: path + ".Key", Message: "tag key must be set"}
		}
		if seen[tag.Key] {
			return &ValidationError{Target: target, KeyPath: path + ".Key", Message: fmt.Sprintf("duplicate tag key %s", tag.Key)}
		}
		seen[tag.Key] = true
		if reservedTagKeys[tag.Key] {
			return &ValidationError{Target: target, KeyPath: path + ".Key", Message: fmt.Sprintf("tag key %s is reserved", tag.Key)}
		}
		if tag.State != "" && tag.State != TagPresent && tag.State != TagAbsent {
			return &ValidationError{Target: target, KeyPath: path + ".State", Message: "tag State must be Present or Absent"}
		}
	}
	return nil
}

// fieldError converts a validator error into a ValidationError with a
// usable key path.
func fieldError(err error, target, path string) error {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		fe := errs[0]
		return &ValidationError{
			Target:  target,
			KeyPath: fmt.Sprintf("%s.%s", path, fe.Field()),
			Message: fmt.Sprintf("failed validation rule %q", fe.Tag()),
		}
	}
	return &ValidationError{Target: target, KeyPath: path, Message: err.Error()}
}
