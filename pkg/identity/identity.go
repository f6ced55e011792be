// Package identity derives stable, deterministic names and fingerprints for
// managed forecast resources. Names double as idempotency keys: a retried
// execution computes the same names and finds its partially created
// resources instead of duplicating them.
package identity

import (
	"strings"

	"github.com/forecastkit/forecastkit/pkg/config"
)

// Kind identifies the kind of managed resource a name is derived for.
type Kind string

// Resource kinds managed by the orchestrator.
const (
	KindDatasetGroup Kind = "dataset-group"
	KindDataset      Kind = "dataset"
	KindImportJob    Kind = "dataset-import-job"
	KindPredictor    Kind = "predictor"
	KindForecast     Kind = "forecast"
	KindExport       Kind = "forecast-export-job"
)

// The service accepts names of at most 63 characters matching
// ^[a-zA-Z][a-zA-Z0-9_]*$.
const maxNameLen = 63

// fingerprintLen is the number of fingerprint hex digits embedded in a
// derived name. 48 bits is plenty for per-group uniqueness while leaving
// room for the group name.
const fingerprintLen = 12

// suffixes distinguishes resource kinds within a dataset group namespace.
var suffixes = map[Kind]string{
	KindDatasetGroup: "",
	KindDataset:      "",
	KindImportJob:    "import",
	KindPredictor:    "predictor",
	KindForecast:     "forecast",
	KindExport:       "export",
}

// Name derives the deterministic resource name for kind within the dataset
// group namespace. The fingerprint, when non-empty, ties the name to the
// uploaded content so identical bytes always map to the same resource and
// changed bytes map to a new one. Inputs that are overlong or contain
// characters the service rejects are sanitized and truncated
// deterministically.
func Name(datasetGroup string, kind Kind, fingerprint string) string {
	suffix := suffixes[kind]
	if len(fingerprint) > fingerprintLen {
		fingerprint = fingerprint[:fingerprintLen]
	}

	tail := ""
	if suffix != "" {
		tail += "_" + suffix
	}
	if fingerprint != "" {
		tail += "_" + Sanitize(fingerprint)
	}

	group := Sanitize(datasetGroup)
	if len(group)+len(tail) > maxNameLen {
		group = group[:maxNameLen-len(tail)]
	}
	return group + tail
}

// DatasetName derives the name for a dataset of the given type. Dataset
// names carry no content fingerprint: the dataset is a stable container and
// refreshed content flows through import jobs. Related and metadata
// datasets are suffixed the way the upload naming convention suffixes their
// files.
func DatasetName(datasetGroup, datasetType string) string {
	suffix := ""
	switch datasetType {
	case config.RelatedTimeSeries:
		suffix = "_related"
	case config.ItemMetadata:
		suffix = "_metadata"
	}

	group := Sanitize(datasetGroup)
	if len(group)+len(suffix) > maxNameLen {
		group = group[:maxNameLen-len(suffix)]
	}
	return group + suffix
}

// ImportJobName derives the import job name for one dataset type and
// content fingerprint.
func ImportJobName(datasetGroup, datasetType, fingerprint string) string {
	base := DatasetName(datasetGroup, datasetType)
	if len(fingerprint) > fingerprintLen {
		fingerprint = fingerprint[:fingerprintLen]
	}
	tail := "_import_" + Sanitize(fingerprint)
	if len(base)+len(tail) > maxNameLen {
		base = base[:maxNameLen-len(tail)]
	}
	return base + tail
}

// Sanitize maps an arbitrary string onto the service's restricted character
// set. The mapping is deterministic: the same input always yields the same
// output. Characters outside [a-zA-Z0-9_] become underscores, and a leading
// non-letter is prefixed so the result starts with a letter.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || !isLetter(out[0]) {
		out = "fk" + out
	}
	if len(out) > maxNameLen {
		out = out[:maxNameLen]
	}
	return out
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
