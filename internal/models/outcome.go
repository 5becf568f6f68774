package models

// OutcomeKind classifies a non-fatal per-item result of an ingestion run.
type OutcomeKind int

const (
	// SkipFile means a whole file produced no text.
	SkipFile OutcomeKind = iota + 1
	// SkipImage means one embedded image could not be recognized.
	SkipImage
	// SkipChunk means one chunk could not be embedded.
	SkipChunk
)

// String returns the snake_case name of the kind.
func (k OutcomeKind) String() string {
	switch k {
	case SkipFile:
		return "skip_file"
	case SkipImage:
		return "skip_image"
	case SkipChunk:
		return "skip_chunk"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Outcome records one skipped item and why. Page, Image and Chunk are only
// meaningful for the kinds that set them.
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Path   string      `json:"path"`
	Page   int         `json:"page,omitempty"`
	Image  string      `json:"image,omitempty"`
	Chunk  int         `json:"chunk,omitempty"`
	Reason string      `json:"reason"`
}
