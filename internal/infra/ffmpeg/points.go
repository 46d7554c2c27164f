package ffmpeg

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidPoints is returned when a points file cannot be used.
var ErrInvalidPoints = errors.New("invalid points")

const (
	pointExample  = `[123.45, 0.95]`
	pointsExample = `{"points": [` + pointExample + `]}`
)

// Point is one section of the audio track: DurationMs milliseconds of the
// source played back at Tempo.
type Point struct {
	DurationMs float64 `validate:"gt=0"`
	Tempo      float64 `validate:"gte=0.5,lte=2"`
}

// endPoint covers the rest of the audio at an unchanged tempo.
var endPoint = Point{DurationMs: 0, Tempo: 1}

// IsEnd reports whether p is the trailing section that runs to the end.
func (p Point) IsEnd() bool {
	return p.DurationMs == 0
}

var validate = validator.New()

// ParsePoints reads a points document of the form
// {"points": [[duration_ms, tempo], ...]}. At least one point is required.
func ParsePoints(data []byte) ([]Point, error) {
	var doc struct {
		Points []json.RawMessage `json:"points"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, invalidf("expected for example `%s` (at least one point): %v", pointsExample, err)
	}
	if len(doc.Points) == 0 {
		return nil, invalidf("expected for example `%s` (at least one point) but got: %s", pointsExample, data)
	}

	points := make([]Point, 0, len(doc.Points))
	for i, raw := range doc.Points {
		p, err := parsePoint(raw)
		if err != nil {
			return nil, invalidf("expected point %d to be for example `%s` but got: %s", i+1, pointExample, raw)
		}
		if err := validate.Struct(p); err != nil {
			return nil, pointError(i+1, p, err)
		}
		points = append(points, p)
	}
	return points, nil
}

func parsePoint(raw json.RawMessage) (Point, error) {
	var pair []any
	if err := json.Unmarshal(raw, &pair); err != nil {
		return Point{}, err
	}
	if len(pair) != 2 {
		return Point{}, errors.Newf("got %d values", len(pair))
	}
	// Booleans and strings decode to other types and are rejected here.
	duration, ok := pair[0].(float64)
	if !ok {
		return Point{}, errors.New("duration is not a number")
	}
	tempo, ok := pair[1].(float64)
	if !ok {
		return Point{}, errors.New("tempo is not a number")
	}
	return Point{DurationMs: duration, Tempo: tempo}, nil
}

func pointError(num int, p Point, err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		switch fieldErrs[0].Field() {
		case "DurationMs":
			return invalidf("expected point %d to have a duration > 0 but got: %v", num, p.DurationMs)
		case "Tempo":
			return invalidf("expected point %d to have 0.5 <= tempo <= 2.0 but got: %v", num, p.Tempo)
		}
	}
	return errors.Mark(errors.Wrapf(err, "point %d", num), ErrInvalidPoints)
}

func invalidf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidPoints)
}
