// Package face wraps a lightweight face detector used for two things: the
// hard "is there a face at all" precondition during preprocessing, and an
// optional bounding-box hint that lets the inference engine skip its own,
// much heavier detector.
package face

import (
	"os"

	pigo "github.com/esimov/pigo/core"
	"github.com/pkg/errors"
)

// minQuality filters low-confidence cascade detections.
const minQuality = 5.0

// Box is a face bounding box in pixel coordinates.
type Box struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Detector runs a pigo cascade over still frames.
type Detector struct {
	classifier *pigo.Pigo
}

// NewDetector loads and unpacks the binary cascade file.
func NewDetector(cascadePath string) (*Detector, error) {
	data, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading face cascade %s", cascadePath)
	}
	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, errors.Wrap(err, "unpacking face cascade")
	}
	return &Detector{classifier: classifier}, nil
}

// DetectFile scans a single image file and returns the best face found.
func (d *Detector) DetectFile(path string) (Box, bool, error) {
	src, err := pigo.GetImage(path)
	if err != nil {
		return Box{}, false, errors.Wrapf(err, "decoding frame %s", path)
	}

	pixels := pigo.RgbToGrayscale(src)
	cols, rows := src.Bounds().Max.X, src.Bounds().Max.Y

	params := pigo.CascadeParams{
		MinSize:     30,
		MaxSize:     1000,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, 0.2)

	best := Box{}
	found := false
	var bestQ float32
	for _, det := range dets {
		if det.Q < minQuality {
			continue
		}
		if !found || det.Q > bestQ {
			found = true
			bestQ = det.Q
			best = Box{
				X:      det.Col - det.Scale/2,
				Y:      det.Row - det.Scale/2,
				Width:  det.Scale,
				Height: det.Scale,
			}
		}
	}
	return best, found, nil
}

// ScanFrames checks frames in order and returns the first face found. Frames
// that fail to decode are skipped; a face anywhere in the prefix is enough.
func (d *Detector) ScanFrames(paths []string) (Box, bool, error) {
	var lastErr error
	for _, path := range paths {
		box, ok, err := d.DetectFile(path)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return box, true, nil
		}
	}
	if lastErr != nil {
		return Box{}, false, lastErr
	}
	return Box{}, false, nil
}
