package pipeline

import (
	"math"
	"reflect"

	"github.com/go-playground/validator/v10"
)

type Outcome int

const (
	OutcomeValid Outcome = iota
	OutcomeUnauthorized
	OutcomeMalformed
	OutcomeImplausible
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeImplausible:
		return "implausible"
	}
	return "unknown"
}

// RequiredFields are the fields the structural gate insists on.
var RequiredFields = []string{"source", "objectId", "lat", "lon"}

const DefaultSpeedCeiling = 200

// Thresholds tune the plausibility gate. The zero value applies the defaults.
type Thresholds struct {
	// SpeedCeiling drops reports whose speed is at or above it. The value is
	// unit-less: it catches sentinel speeds emitted by BLE noise sources.
	SpeedCeiling float64

	// AllowNullIsland admits reports at exactly (0,0).
	AllowNullIsland bool
}

type Validator struct {
	thresholds Thresholds
	structural *validator.Validate
}

func NewValidator(t Thresholds) *Validator {
	if t.SpeedCeiling <= 0 {
		t.SpeedCeiling = DefaultSpeedCeiling
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("finite", validateFinite)
	return &Validator{thresholds: t, structural: v}
}

func (v *Validator) Thresholds() Thresholds { return v.thresholds }

// Validate runs the structural gate, then the plausibility gate. Authorization
// is the caller's job and must happen first. The Record is only meaningful
// when the outcome is OutcomeValid.
func (v *Validator) Validate(r Report) (Outcome, Record) {
	if err := v.structural.Struct(r); err != nil {
		return OutcomeMalformed, Record{}
	}
	rec := normalize(r)
	if !v.plausible(rec) {
		return OutcomeImplausible, Record{}
	}
	return OutcomeValid, rec
}

func (v *Validator) plausible(r Record) bool {
	if !v.thresholds.AllowNullIsland && r.Lat == 0 && r.Lon == 0 {
		return false
	}
	if finite(r.Speed) && *r.Speed >= v.thresholds.SpeedCeiling {
		return false
	}
	// at least one aeronautical signal
	return finite(r.Altitude) || finite(r.Heading) || (r.Model != nil && *r.Model != "")
}

// normalize applies defaults and drops optional values that are not finite.
func normalize(r Report) Record {
	typ := r.Type
	if typ == "" {
		typ = DefaultType
	}
	return Record{
		Source:   r.Source,
		ObjectID: r.ObjectID,
		Type:     typ,
		Model:    r.Model,
		Lat:      *r.Lat,
		Lon:      *r.Lon,
		Altitude: finiteOrNil(r.Altitude),
		Speed:    finiteOrNil(r.Speed),
		Heading:  finiteOrNil(r.Heading),
	}
}

func validateFinite(fl validator.FieldLevel) bool {
	f := fl.Field()
	switch f.Kind() {
	case reflect.Float32, reflect.Float64:
		return isFinite(f.Float())
	}
	return false
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func finite(p *float64) bool {
	return p != nil && isFinite(*p)
}

func finiteOrNil(p *float64) *float64 {
	if !finite(p) {
		return nil
	}
	return p
}
