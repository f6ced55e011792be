package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Fragment names with special meaning in a configuration document.
const (
	// DefaultKey is the base layer applied under every named fragment.
	DefaultKey = "Default"

	// OverrideKey, when present in a document, is applied on top of the
	// named fragment for every resolution.
	OverrideKey = "Override"
)

// Dataset types understood by the forecasting service.
const (
	TargetTimeSeries  = "TARGET_TIME_SERIES"
	RelatedTimeSeries = "RELATED_TIME_SERIES"
	ItemMetadata      = "ITEM_METADATA"
)

// Tag states. A tag marked Absent is removed from the resource if present.
const (
	TagPresent = "Present"
	TagAbsent  = "Absent"
)

// Document is a parsed configuration file: a mapping of fragment name to
// Fragment. Documents are loaded once per execution and never mutated.
type Document map[string]*Fragment

// Fragment is one named block of the layered configuration document. All
// fields are optional; unset fields fall through to the layer below during
// resolution.
type Fragment struct {
	// DatasetGroup configures the dataset group for this fragment.
	DatasetGroup *DatasetGroupSpec `yaml:"DatasetGroup,omitempty"`

	// Datasets configures the datasets belonging to the dataset group.
	// It is either a list of dataset specs or a {From: name} reference
	// that splices another fragment's dataset list verbatim.
	Datasets *DatasetsSpec `yaml:"Datasets,omitempty"`

	// Predictor configures predictor training.
	Predictor *PredictorSpec `yaml:"Predictor,omitempty"`

	// Forecast configures forecast generation.
	Forecast *ForecastSpec `yaml:"Forecast,omitempty"`

	// Tags are applied to every resource created for this fragment.
	Tags []Tag `yaml:"Tags,omitempty"`
}

// DatasetGroupSpec configures the dataset group resource.
type DatasetGroupSpec struct {
	// Domain is the forecasting domain (e.g. RETAIL, CUSTOM, METRICS).
	Domain string `yaml:"Domain" validate:"omitempty,oneof=RETAIL CUSTOM INVENTORY_PLANNING EC2_CAPACITY WORK_FORCE WEB_TRAFFIC METRICS"`

	// Tags are applied to the dataset group only.
	Tags []Tag `yaml:"Tags,omitempty"`
}

// DatasetsSpec holds either an inline dataset list, a From reference, or
// both (the referenced list is spliced first, local entries are appended).
type DatasetsSpec struct {
	// From names another fragment whose Datasets list is copied verbatim
	// before any local entries.
	From string

	// Items are the locally declared dataset specs.
	Items []DatasetSpec
}

// UnmarshalYAML accepts the two shapes the document allows for Datasets:
// a plain list, or a mapping with a From key (and optionally a Datasets
// list of additional local entries).
func (d *DatasetsSpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		return value.Decode(&d.Items)
	case yaml.MappingNode:
		var ref struct {
			From     string        `yaml:"From"`
			Datasets []DatasetSpec `yaml:"Datasets,omitempty"`
		}
		if err := value.Decode(&ref); err != nil {
			return err
		}
		if ref.From == "" {
			return fmt.Errorf("Datasets must be a list, or a mapping with a From key referencing another fragment by name")
		}
		d.From = ref.From
		d.Items = ref.Datasets
		return nil
	default:
		return fmt.Errorf("Datasets must be a list or a mapping, got %s", value.Tag)
	}
}

// MarshalYAML renders the spec back in the shape it was declared in.
func (d DatasetsSpec) MarshalYAML() (interface{}, error) {
	if d.From == "" {
		return d.Items, nil
	}
	out := map[string]interface{}{"From": d.From}
	if len(d.Items) > 0 {
		out["Datasets"] = d.Items
	}
	return out, nil
}

// DatasetSpec configures a single dataset within a dataset group.
type DatasetSpec struct {
	// DatasetType is one of TARGET_TIME_SERIES, RELATED_TIME_SERIES,
	// ITEM_METADATA.
	DatasetType string `yaml:"DatasetType" validate:"required,oneof=TARGET_TIME_SERIES RELATED_TIME_SERIES ITEM_METADATA"`

	// Domain is the dataset domain; it must match the dataset group domain.
	Domain string `yaml:"Domain,omitempty"`

	// Schema describes the columns of the uploaded data.
	Schema Schema `yaml:"Schema"`

	// DataFrequency is the collection interval (e.g. D, H, 30min). Not
	// used for item metadata.
	DataFrequency string `yaml:"DataFrequency,omitempty"`

	// TimestampFormat is the timestamp layout in the uploaded data. Not
	// used for item metadata.
	TimestampFormat string `yaml:"TimestampFormat,omitempty"`

	// Tags are applied to the dataset and its import jobs.
	Tags []Tag `yaml:"Tags,omitempty"`
}

// Schema describes the attributes of a dataset.
type Schema struct {
	Attributes []SchemaAttribute `yaml:"Attributes" validate:"required,min=1,dive"`
}

// SchemaAttribute is one column of a dataset schema.
type SchemaAttribute struct {
	AttributeName string `yaml:"AttributeName" validate:"required"`
	AttributeType string `yaml:"AttributeType" validate:"required,oneof=string integer float timestamp geolocation"`
}

// PredictorSpec configures predictor training.
type PredictorSpec struct {
	// AlgorithmArn selects the training algorithm. Empty selects AutoML.
	AlgorithmArn string `yaml:"AlgorithmArn,omitempty"`

	// ForecastHorizon is the number of periods to forecast.
	ForecastHorizon int `yaml:"ForecastHorizon,omitempty" validate:"omitempty,gt=0"`

	// ForecastFrequency is the prediction interval.
	ForecastFrequency string `yaml:"ForecastFrequency,omitempty"`

	// FeaturizationPipeline names the featurization methods applied to
	// the input data, in order.
	FeaturizationPipeline []string `yaml:"FeaturizationPipeline,omitempty"`

	// TrainingParameters are passed through to the training algorithm.
	TrainingParameters map[string]string `yaml:"TrainingParameters,omitempty"`

	// MaxAge is the maximum age in seconds an existing predictor may have
	// and still be reused instead of retrained. Defaults to one week.
	MaxAge *int64 `yaml:"MaxAge,omitempty" validate:"omitempty,gt=0"`

	// Tags are applied to the predictor.
	Tags []Tag `yaml:"Tags,omitempty"`
}

// ForecastSpec configures forecast generation.
type ForecastSpec struct {
	// ForecastTypes are the quantiles to materialize (e.g. "0.10", "0.50",
	// "0.90", or "mean").
	ForecastTypes []string `yaml:"ForecastTypes,omitempty" validate:"omitempty,min=1"`

	// Tags are applied to the forecast and its export jobs.
	Tags []Tag `yaml:"Tags,omitempty"`
}

// Tag is a key/value pair applied to a resource. State controls whether the
// tag should be present on or absent from the resource; it defaults to
// Present.
type Tag struct {
	Key   string `yaml:"Key" validate:"required"`
	Value string `yaml:"Value,omitempty"`
	State string `yaml:"State,omitempty" validate:"omitempty,oneof=Present Absent"`
}

// Absent reports whether the tag is marked for removal.
func (t Tag) Absent() bool {
	return t.State == TagAbsent
}

// EffectiveConfig is the fully merged, validated configuration for one
// dataset group. It is derived fresh per dataset group per execution and is
// immutable once returned from Resolve.
type EffectiveConfig struct {
	// Name is the dataset group name the configuration was resolved for.
	Name string

	// Domain is the dataset group domain.
	Domain string

	// Datasets is the ordered list of dataset specs. Exactly one entry has
	// DatasetType TARGET_TIME_SERIES and dataset types are unique.
	Datasets []DatasetSpec

	// Predictor holds the merged predictor parameters.
	Predictor PredictorSpec

	// Forecast holds the merged forecast parameters.
	Forecast ForecastSpec

	// GlobalTags apply to every resource; per-resource tags override them
	// entry-by-entry (the whole overriding entry wins, including State).
	GlobalTags []Tag

	// DatasetGroupTags apply to the dataset group only.
	DatasetGroupTags []Tag
}

// Dataset returns the dataset spec with the given type, or nil.
func (e *EffectiveConfig) Dataset(datasetType string) *DatasetSpec {
	for i := range e.Datasets {
		if e.Datasets[i].DatasetType == datasetType {
			return &e.Datasets[i]
		}
	}
	return nil
}

// TagsFor merges resource tags over the global tags. When the same key
// appears in both layers the resource entry wins entirely. Tags marked
// Absent are returned too; callers decide how to apply them.
func (e *EffectiveConfig) TagsFor(resourceTags []Tag) []Tag {
	merged := make([]Tag, 0, len(e.GlobalTags)+len(resourceTags))
	overridden := make(map[string]bool, len(resourceTags))
	for _, t := range resourceTags {
		overridden[t.Key] = true
	}
	for _, t := range e.GlobalTags {
		if !overridden[t.Key] {
			merged = append(merged, t)
		}
	}
	merged = append(merged, resourceTags...)
	return merged
}
