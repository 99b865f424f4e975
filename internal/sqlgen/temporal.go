package sqlgen

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/markb/fhirsql/internal/fhirpath"
)

// temporalCompare renders a comparison between a stored temporal value and
// a temporal literal. Partial-precision literals compare as the half-open
// range [low, next) over ISO 8601 text, which orders lexically. Zone
// offsets on literals are stripped; stored values are assumed to carry a
// uniform offset per dataset.
func (t *Translator) temporalCompare(op, valueSQL string, lit *fhirpath.Literal, litOnLeft bool) (string, error) {
	low, next, exact, err := temporalRange(lit)
	if err != nil {
		return "", err
	}

	if litOnLeft {
		switch op {
		case "<":
			op = ">"
		case "<=":
			op = ">="
		case ">":
			op = "<"
		case ">=":
			op = "<="
		}
	}

	lowLit := t.d.QuoteLiteral(low)
	if exact {
		cmp := op
		if op == "=" {
			cmp = "="
		} else if op == "!=" {
			cmp = "<>"
		}
		return fmt.Sprintf("(%s %s %s)", valueSQL, cmp, lowLit), nil
	}
	nextLit := t.d.QuoteLiteral(next)

	switch op {
	case "=":
		return fmt.Sprintf("(%s >= %s AND %s < %s)", valueSQL, lowLit, valueSQL, nextLit), nil
	case "!=":
		return fmt.Sprintf("(%s < %s OR %s >= %s)", valueSQL, lowLit, valueSQL, nextLit), nil
	case "<":
		return fmt.Sprintf("(%s < %s)", valueSQL, lowLit), nil
	case "<=":
		return fmt.Sprintf("(%s < %s)", valueSQL, nextLit), nil
	case ">":
		return fmt.Sprintf("(%s >= %s)", valueSQL, nextLit), nil
	case ">=":
		return fmt.Sprintf("(%s >= %s)", valueSQL, lowLit), nil
	default:
		return "", newTranslationError(ErrUnsupportedExpression, lit.Source(),
			"operator %s is not defined for temporal values", op)
	}
}

// temporalRange computes the [low, next) text bounds for a temporal
// literal at its stated precision. Literals carrying fractional seconds
// compare exactly.
func temporalRange(lit *fhirpath.Literal) (low, next string, exact bool, err error) {
	v := lit.Value
	if lit.Kind == fhirpath.LitDateTime {
		v = stripZone(v)
	}
	if strings.Contains(v, ".") {
		return v, "", true, nil
	}

	switch lit.Kind {
	case fhirpath.LitTime:
		next, err = nextTime(v)
		return v, next, false, err
	case fhirpath.LitDate:
		next, err = nextDate(v)
		return v, next, false, err
	case fhirpath.LitDateTime:
		datePart, timePart, hasT := strings.Cut(v, "T")
		if !hasT || timePart == "" {
			v = datePart
			next, err = nextDate(datePart)
			return v, next, false, err
		}
		next, err = nextDateTime(datePart, timePart)
		return v, next, false, err
	default:
		return "", "", false, newTranslationError(ErrInvalidLiteral, lit.Source(),
			"not a temporal literal: %q", lit.Text)
	}
}

// stripZone removes a trailing Z or numeric offset from a datetime text.
func stripZone(v string) string {
	tIdx := strings.IndexByte(v, 'T')
	if tIdx < 0 {
		return v
	}
	rest := v[tIdx:]
	if i := strings.IndexAny(rest, "Z+"); i >= 0 {
		return v[:tIdx+i]
	}
	// A '-' after the T portion can only introduce an offset.
	if i := strings.IndexByte(rest, '-'); i >= 0 {
		return v[:tIdx+i]
	}
	return v
}

// nextTime advances a partial time by its smallest stated unit. Overflow
// past midnight clamps to "24:00:00", which sorts above every valid time.
func nextTime(v string) (string, error) {
	parts := strings.Split(v, ":")
	if len(parts) < 1 || len(parts) > 3 {
		return "", fmt.Errorf("malformed time %q", v)
	}
	vals := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", fmt.Errorf("malformed time %q", v)
		}
		vals[i] = n
	}
	secs := vals[0] * 3600
	unit := 3600
	if len(vals) > 1 {
		secs += vals[1] * 60
		unit = 60
	}
	if len(vals) > 2 {
		secs += vals[2]
		unit = 1
	}
	secs += unit
	if secs >= 24*3600 {
		return "24:00:00", nil
	}
	switch len(vals) {
	case 1:
		return fmt.Sprintf("%02d", secs/3600), nil
	case 2:
		return fmt.Sprintf("%02d:%02d", secs/3600, secs/60%60), nil
	default:
		return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60), nil
	}
}

// nextDate advances a partial date by its smallest stated unit.
func nextDate(v string) (string, error) {
	parts := strings.Split(v, "-")
	switch len(parts) {
	case 1:
		y, err := strconv.Atoi(parts[0])
		if err != nil {
			return "", fmt.Errorf("malformed date %q", v)
		}
		return fmt.Sprintf("%04d", y+1), nil
	case 2:
		d, err := parseDate(parts[0], parts[1], "1")
		if err != nil {
			return "", err
		}
		return d.AddDate(0, 1, 0).Format("2006-01"), nil
	case 3:
		d, err := parseDate(parts[0], parts[1], parts[2])
		if err != nil {
			return "", err
		}
		return d.AddDate(0, 0, 1).Format("2006-01-02"), nil
	default:
		return "", fmt.Errorf("malformed date %q", v)
	}
}

// nextDateTime advances a date plus partial time by the smallest stated
// unit, carrying across component boundaries.
func nextDateTime(datePart, timePart string) (string, error) {
	dParts := strings.Split(datePart, "-")
	if len(dParts) != 3 {
		return "", fmt.Errorf("malformed datetime date %q", datePart)
	}
	d, err := parseDate(dParts[0], dParts[1], dParts[2])
	if err != nil {
		return "", err
	}

	tParts := strings.Split(timePart, ":")
	if len(tParts) < 1 || len(tParts) > 3 {
		return "", fmt.Errorf("malformed datetime time %q", timePart)
	}
	vals := make([]int, len(tParts))
	for i, p := range tParts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", fmt.Errorf("malformed datetime time %q", timePart)
		}
		vals[i] = n
	}

	layout := "2006-01-02T15"
	step := time.Hour
	d = d.Add(time.Duration(vals[0]) * time.Hour)
	if len(vals) > 1 {
		d = d.Add(time.Duration(vals[1]) * time.Minute)
		layout = "2006-01-02T15:04"
		step = time.Minute
	}
	if len(vals) > 2 {
		d = d.Add(time.Duration(vals[2]) * time.Second)
		layout = "2006-01-02T15:04:05"
		step = time.Second
	}
	return d.Add(step).Format(layout), nil
}

func parseDate(ys, ms, ds string) (time.Time, error) {
	y, err1 := strconv.Atoi(ys)
	m, err2 := strconv.Atoi(ms)
	d, err3 := strconv.Atoi(ds)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, fmt.Errorf("malformed date %s-%s-%s", ys, ms, ds)
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC), nil
}
