package distance

import "fmt"

// Decision classifies how strongly two pictures match.
// Values are ordered by strength: No < Maybe < Yes.
type Decision uint8

const (
	No Decision = iota
	Maybe
	Yes
)

func (d Decision) String() string {
	switch d {
	case Yes:
		return "YES"
	case Maybe:
		return "MAYBE"
	case No:
		return "NO"
	default:
		return fmt.Sprintf("Decision(%d)", uint8(d))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Decision) UnmarshalText(text []byte) error {
	switch string(text) {
	case "YES":
		*d = Yes
	case "MAYBE":
		*d = Maybe
	case "NO":
		*d = No
	default:
		return fmt.Errorf("unknown decision %q", text)
	}
	return nil
}

// Weakest returns the least confident of the two decisions.
func Weakest(a, b Decision) Decision {
	if a < b {
		return a
	}
	return b
}

// AlgoMatch is the result of one algorithm on one picture pair.
type AlgoMatch struct {
	Name     string   `json:"name"`
	Distance float64  `json:"distance"`
	Decision Decision `json:"decision"`
}

// ImageMatch is the fused result of comparing a picture against a stored picture.
type ImageMatch struct {
	PictureID string   `json:"picture_id"`
	ClusterID string   `json:"cluster_id"`
	Distance  float64  `json:"distance"`
	Decision  Decision `json:"decision"`
}

// ClusterMatch is the fused result of comparing a picture against a cluster.
type ClusterMatch struct {
	ClusterID string   `json:"cluster_id"`
	Distance  float64  `json:"distance"`
	Decision  Decision `json:"decision"`
}

// MissingFeatureError is returned when a bundle has no entry at all for an
// enabled algorithm that requires one.
type MissingFeatureError struct {
	Algorithm string
}

func (e *MissingFeatureError) Error() string {
	return fmt.Sprintf("feature %q missing from bundle", e.Algorithm)
}
