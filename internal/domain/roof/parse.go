package roof

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// ParseAnalysis extracts the JSON object from a model answer. Text around
// the object, such as markdown fences, is ignored.
func ParseAnalysis(text string) (Analysis, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Analysis{}, errors.New("no JSON object in model response")
	}

	a := Analysis{DamageAreas: []Damage{}, Recommendations: []string{}}
	d := jx.DecodeStr(text[start : end+1])
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		switch string(key) {
		case "square_feet":
			v, err := number(d)
			a.SquareFeet = v
			return err
		case "pitch":
			return str(d, &a.Pitch)
		case "material":
			return str(d, &a.Material)
		case "condition":
			return str(d, &a.Condition)
		case "remaining_life":
			v, err := number(d)
			a.RemainingLife = int(v)
			return err
		case "recommendations":
			return d.Arr(func(d *jx.Decoder) error {
				var s string
				if err := str(d, &s); err != nil {
					return err
				}
				a.Recommendations = append(a.Recommendations, s)
				return nil
			})
		case "damage_areas":
			return d.Arr(func(d *jx.Decoder) error {
				dmg, err := parseDamage(d)
				if err != nil {
					return err
				}
				a.DamageAreas = append(a.DamageAreas, dmg)
				return nil
			})
		case "confidence_scores":
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				var target *float64
				switch string(key) {
				case "area_measurement":
					target = &a.Confidence.AreaMeasurement
				case "material_identification":
					target = &a.Confidence.MaterialIdentification
				case "damage_assessment":
					target = &a.Confidence.DamageAssessment
				default:
					return d.Skip()
				}
				v, err := number(d)
				*target = v
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return Analysis{}, errors.Wrap(err, "decode analysis")
	}
	return a, nil
}

func parseDamage(d *jx.Decoder) (Damage, error) {
	var dmg Damage
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		switch string(key) {
		case "type":
			return str(d, &dmg.Type)
		case "severity":
			return str(d, &dmg.Severity)
		case "location":
			return str(d, &dmg.Location)
		case "area_sqft":
			v, err := number(d)
			dmg.AreaSqFt = v
			return err
		default:
			return d.Skip()
		}
	})
	return dmg, err
}

// number reads a JSON number, tolerating numbers sent as strings.
func number(d *jx.Decoder) (float64, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		n := jx.DecodeStr(strings.TrimSpace(s))
		if n.Next() != jx.Number {
			return 0, nil
		}
		return n.Float64()
	}
	return d.Float64()
}

// str reads a string, rendering any other scalar as its JSON text.
func str(d *jx.Decoder, dst *string) error {
	if d.Next() == jx.String {
		v, err := d.Str()
		*dst = v
		return err
	}
	raw, err := d.Raw()
	*dst = raw.String()
	return err
}
