package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/forecastkit/forecastkit/pkg/config"
)

// Fingerprint computes the full-content checksum of an uploaded object by
// streaming it through SHA-256. Two uploads with identical bytes produce
// the same fingerprint regardless of object metadata; any byte-level change
// produces a different one.
func Fingerprint(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("fingerprint content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FingerprintBytes computes the content fingerprint of an in-memory payload.
func FingerprintBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PredictorFingerprint computes a canonical fingerprint of the predictor
// parameters that affect training: algorithm, horizon and frequency,
// featurization pipeline, and training parameters. An existing predictor is
// only reused when this fingerprint is unchanged. MaxAge and tags are
// excluded: they change reuse policy and metadata, not the trained model.
func PredictorFingerprint(p config.PredictorSpec) string {
	var b strings.Builder
	b.WriteString("algorithm=")
	b.WriteString(p.AlgorithmArn)
	fmt.Fprintf(&b, "|horizon=%d", p.ForecastHorizon)
	b.WriteString("|frequency=")
	b.WriteString(p.ForecastFrequency)

	b.WriteString("|featurization=")
	b.WriteString(strings.Join(p.FeaturizationPipeline, ","))

	keys := make([]string, 0, len(p.TrainingParameters))
	for k := range p.TrainingParameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString("|params=")
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p.TrainingParameters[k])
	}

	return FingerprintBytes([]byte(b.String()))
}
