package models

import (
	"fmt"
	"strconv"
	"strings"
)

// FrameRecord is one row of the result table: the classification of a single
// exported frame.
type FrameRecord struct {
	Frame     int
	Tags      string // space-joined tag names
	Text      string // top caption
	ImagePath string
	// Confidence of the top caption, nil when the API returned no caption.
	Confidence *float64
}

// Analysis is what the classifier reports for one image.
type Analysis struct {
	Tags       []string
	Caption    string
	Confidence *float64
}

// HasTags reports whether the classifier answered with a tag list at all.
// Error-shaped responses decode into an Analysis without tags.
func (a *Analysis) HasTags() bool {
	return a != nil && a.Tags != nil
}

// Record turns an analysis into a result table row for the given frame.
func (a *Analysis) Record(frame int, imagePath string) FrameRecord {
	return FrameRecord{
		Frame:      frame,
		Tags:       strings.Join(a.Tags, " "),
		Text:       a.Caption,
		ImagePath:  imagePath,
		Confidence: a.Confidence,
	}
}

// Bucket is the triage destination of a frame.
type Bucket int

const (
	BucketNoObject Bucket = iota
	BucketObject
)

func (b Bucket) String() string {
	if b == BucketObject {
		return "object"
	}
	return "no-object"
}

const (
	framePrefix     = "frame_"
	frameExt        = ".jpg"
	processedSuffix = "_processed"
)

// FrameName returns the file name of the exported frame with decode index i.
func FrameName(i int) string {
	return fmt.Sprintf("frame_%04d.jpg", i)
}

// ProcessedName returns the file name of the normalized variant of frame i.
func ProcessedName(i int) string {
	return fmt.Sprintf("frame_%04d_processed.jpg", i)
}

// ParseFrameName extracts the frame index from a name produced by FrameName.
// Processed variants and anything else are rejected.
func ParseFrameName(name string) (int, bool) {
	if !strings.HasPrefix(name, framePrefix) || !strings.HasSuffix(name, frameExt) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, framePrefix), frameExt)
	if digits == "" || strings.HasSuffix(digits, processedSuffix) {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FrameSearchResult is a frame returned by a similarity search.
type FrameSearchResult struct {
	Video       string
	FrameNumber int
	FramePath   string
	Tags        string
	Description string
	Similarity  float64
}
