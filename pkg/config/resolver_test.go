package config

import (
	"errors"
	"strings"
	"testing"
)

const testDocument = `
Default:
  DatasetGroup:
    Domain: RETAIL
  Datasets:
    - DatasetType: TARGET_TIME_SERIES
      Domain: RETAIL
      DataFrequency: D
      TimestampFormat: yyyy-MM-dd
      Schema:
        Attributes:
          - AttributeName: timestamp
            AttributeType: timestamp
          - AttributeName: item_id
            AttributeType: string
          - AttributeName: demand
            AttributeType: float
  Predictor:
    ForecastHorizon: 72
    ForecastFrequency: D
  Forecast:
    ForecastTypes: ["0.10", "0.50", "0.90"]

taxi:
  DatasetGroup:
    Domain: CUSTOM
  Datasets:
    - DatasetType: TARGET_TIME_SERIES
      Domain: CUSTOM
      DataFrequency: H
      Schema:
        Attributes:
          - AttributeName: timestamp
            AttributeType: timestamp
          - AttributeName: item_id
            AttributeType: string
          - AttributeName: target_value
            AttributeType: float

RetailDemand:
  Predictor:
    ForecastHorizon: 30
    ForecastFrequency: D
    MaxAge: 3600

RetailDemandFull:
  Datasets:
    From: Default
    Datasets:
      - DatasetType: RELATED_TIME_SERIES
        Domain: RETAIL
        DataFrequency: D
        TimestampFormat: yyyy-MM-dd
        Schema:
          Attributes:
            - AttributeName: timestamp
              AttributeType: timestamp
            - AttributeName: item_id
              AttributeType: string
            - AttributeName: price
              AttributeType: float

RetailDemandDuplicateDatasets:
  Datasets:
    - DatasetType: TARGET_TIME_SERIES
      Domain: RETAIL
      Schema:
        Attributes:
          - AttributeName: timestamp
            AttributeType: timestamp
    - DatasetType: TARGET_TIME_SERIES
      Domain: RETAIL
      Schema:
        Attributes:
          - AttributeName: timestamp
            AttributeType: timestamp
`

func loadTestDocument(t *testing.T) Document {
	t.Helper()
	doc, err := Load([]byte(testDocument))
	if err != nil {
		t.Fatalf("load test document: %v", err)
	}
	return doc
}

func TestResolveInheritsDefaultScalars(t *testing.T) {
	doc := loadTestDocument(t)

	// taxi does not set ForecastHorizon; Default sets 72.
	eff, err := Resolve(doc, "taxi", nil)
	if err != nil {
		t.Fatalf("resolve taxi: %v", err)
	}
	if eff.Predictor.ForecastHorizon != 72 {
		t.Errorf("ForecastHorizon = %d, want 72 from Default", eff.Predictor.ForecastHorizon)
	}
	if eff.Domain != "CUSTOM" {
		t.Errorf("Domain = %s, want CUSTOM from named fragment", eff.Domain)
	}
	if got := eff.Datasets[0].DataFrequency; got != "H" {
		t.Errorf("DataFrequency = %s, want H (named Datasets replace wholesale)", got)
	}
}

func TestResolveNamedReplacesScalar(t *testing.T) {
	doc := loadTestDocument(t)

	eff, err := Resolve(doc, "RetailDemand", nil)
	if err != nil {
		t.Fatalf("resolve RetailDemand: %v", err)
	}
	if eff.Predictor.ForecastHorizon != 30 {
		t.Errorf("ForecastHorizon = %d, want 30 from named fragment", eff.Predictor.ForecastHorizon)
	}
	if eff.Predictor.MaxAge == nil || *eff.Predictor.MaxAge != 3600 {
		t.Errorf("MaxAge = %v, want 3600", eff.Predictor.MaxAge)
	}
	// Datasets fall through from Default.
	if len(eff.Datasets) != 1 || eff.Datasets[0].DatasetType != TargetTimeSeries {
		t.Errorf("Datasets = %+v, want the Default target time series", eff.Datasets)
	}
}

func TestResolveOverrideWinsLast(t *testing.T) {
	doc := loadTestDocument(t)

	override := &Fragment{
		Predictor: &PredictorSpec{ForecastHorizon: 14, ForecastFrequency: "D"},
	}
	eff, err := Resolve(doc, "RetailDemand", override)
	if err != nil {
		t.Fatalf("resolve with override: %v", err)
	}
	if eff.Predictor.ForecastHorizon != 14 {
		t.Errorf("ForecastHorizon = %d, want 14 from override", eff.Predictor.ForecastHorizon)
	}
}

func TestResolveFromSplicesBeforeLocalEntries(t *testing.T) {
	doc := loadTestDocument(t)

	eff, err := Resolve(doc, "RetailDemandFull", nil)
	if err != nil {
		t.Fatalf("resolve RetailDemandFull: %v", err)
	}
	if len(eff.Datasets) != 2 {
		t.Fatalf("got %d datasets, want 2 (spliced + local)", len(eff.Datasets))
	}
	if eff.Datasets[0].DatasetType != TargetTimeSeries {
		t.Errorf("first dataset = %s, want spliced TARGET_TIME_SERIES", eff.Datasets[0].DatasetType)
	}
	if eff.Datasets[1].DatasetType != RelatedTimeSeries {
		t.Errorf("second dataset = %s, want local RELATED_TIME_SERIES", eff.Datasets[1].DatasetType)
	}
}

func TestResolveDuplicateDatasetTypes(t *testing.T) {
	doc := loadTestDocument(t)

	_, err := Resolve(doc, "RetailDemandDuplicateDatasets", nil)
	if err == nil {
		t.Fatal("expected a validation error for duplicate dataset types")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if !strings.Contains(verr.Message, "duplicate dataset type TARGET_TIME_SERIES") {
		t.Errorf("error = %q, want it to cite the duplicate TARGET_TIME_SERIES", verr.Message)
	}
	if verr.Target != "RetailDemandDuplicateDatasets" {
		t.Errorf("error target = %q, want the fragment name", verr.Target)
	}
}

func TestResolveMissingTargetTimeSeries(t *testing.T) {
	doc := loadTestDocument(t)
	doc["RelatedOnly"] = &Fragment{
		Datasets: &DatasetsSpec{Items: []DatasetSpec{{
			DatasetType: RelatedTimeSeries,
			Domain:      "RETAIL",
			Schema: Schema{Attributes: []SchemaAttribute{
				{AttributeName: "timestamp", AttributeType: "timestamp"},
			}},
		}}},
	}

	_, err := Resolve(doc, "RelatedOnly", nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if !strings.Contains(verr.Message, "TARGET_TIME_SERIES") {
		t.Errorf("error = %q, want it to mention TARGET_TIME_SERIES", verr.Message)
	}
}

func TestResolveTimestampAttributeRequired(t *testing.T) {
	doc := loadTestDocument(t)
	doc["NoTimestamp"] = &Fragment{
		Datasets: &DatasetsSpec{Items: []DatasetSpec{{
			DatasetType: TargetTimeSeries,
			Domain:      "RETAIL",
			Schema: Schema{Attributes: []SchemaAttribute{
				{AttributeName: "item_id", AttributeType: "string"},
			}},
		}}},
	}

	_, err := Resolve(doc, "NoTimestamp", nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if !strings.Contains(verr.KeyPath, "Schema.Attributes") {
		t.Errorf("key path = %q, want it to point at Schema.Attributes", verr.KeyPath)
	}
}

func TestResolveMetadataSchemaNeedsNoTimestamp(t *testing.T) {
	doc := loadTestDocument(t)
	doc["WithMetadata"] = &Fragment{
		Datasets: &DatasetsSpec{
			From: "Default",
			Items: []DatasetSpec{{
				DatasetType: ItemMetadata,
				Domain:      "RETAIL",
				Schema: Schema{Attributes: []SchemaAttribute{
					{AttributeName: "item_id", AttributeType: "string"},
					{AttributeName: "category", AttributeType: "string"},
				}},
			}},
		},
	}

	if _, err := Resolve(doc, "WithMetadata", nil); err != nil {
		t.Fatalf("item metadata without timestamp should be valid, got %v", err)
	}
}

func TestResolveUnknownFromReference(t *testing.T) {
	doc := loadTestDocument(t)
	doc["BadFrom"] = &Fragment{
		Datasets: &DatasetsSpec{From: "NoSuchFragment"},
	}

	_, err := Resolve(doc, "BadFrom", nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if !strings.Contains(verr.KeyPath, "Datasets.From") {
		t.Errorf("key path = %q, want Datasets.From", verr.KeyPath)
	}
}

func TestResolveUnknownTarget(t *testing.T) {
	doc := loadTestDocument(t)
	if _, err := Resolve(doc, "nope", nil); !IsValidationError(err) {
		t.Fatalf("err = %v, want a validation error for an unknown fragment", err)
	}
}

func TestResolveLayeringIsOrderIndependentOfDocument(t *testing.T) {
	// The same scalar overridden in the named fragment and the override
	// layer always resolves to the override value regardless of how the
	// document map iterates.
	doc := loadTestDocument(t)
	override := &Fragment{Predictor: &PredictorSpec{ForecastHorizon: 7, ForecastFrequency: "D"}}

	for i := 0; i < 20; i++ {
		eff, err := Resolve(doc, "RetailDemand", override)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if eff.Predictor.ForecastHorizon != 7 {
			t.Fatalf("iteration %d: ForecastHorizon = %d, want 7", i, eff.Predictor.ForecastHorizon)
		}
	}
}

func TestTagsForOverridingEntryWinsEntirely(t *testing.T) {
	eff := &EffectiveConfig{
		GlobalTags: []Tag{
			{Key: "owner", Value: "data-eng"},
			{Key: "cost-center", Value: "123"},
		},
	}
	resource := []Tag{{Key: "owner", State: TagAbsent}}

	merged := eff.TagsFor(resource)
	if len(merged) != 2 {
		t.Fatalf("got %d tags, want 2", len(merged))
	}
	byKey := map[string]Tag{}
	for _, tag := range merged {
		byKey[tag.Key] = tag
	}
	owner := byKey["owner"]
	if !owner.Absent() || owner.Value != "" {
		t.Errorf("owner tag = %+v, want the resource entry (Absent) to win entirely", owner)
	}
	if byKey["cost-center"].Value != "123" {
		t.Errorf("cost-center should fall through from global tags")
	}
}

func TestResolveReservedTagKeyRejected(t *testing.T) {
	doc := loadTestDocument(t)
	doc["ReservedTag"] = &Fragment{
		Tags: []Tag{{Key: TagKeyFingerprint, Value: "x"}},
	}

	if _, err := Resolve(doc, "ReservedTag", nil); !IsValidationError(err) {
		t.Fatalf("err = %v, want a validation error for a reserved tag key", err)
	}
}
