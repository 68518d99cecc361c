package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseNumber parses an INDI number value. Besides plain decimal notation it
// accepts sexagesimal values such as "-12:30:15.5", "12 30" or "5;30".
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty number", ErrInvalidValue)
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}

	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ':' || r == ' ' || r == ';'
	})
	if len(parts) == 0 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: number %q", ErrInvalidValue, s)
	}

	negative := strings.HasPrefix(parts[0], "-")
	var value float64
	scale := 1.0
	for i, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: number %q", ErrInvalidValue, s)
		}
		if i > 0 && v < 0 {
			return 0, fmt.Errorf("%w: number %q", ErrInvalidValue, s)
		}
		value += math.Abs(v) / scale
		scale *= 60
	}
	if negative {
		value = -value
	}
	return value, nil
}

// FormatNumber renders v using an INDI printf-style format. The INDI
// extension "%<w>.<f>m" produces sexagesimal output where f selects the
// precision: 3 (:mm), 5 (:mm.m), 6 (:mm:ss), 8 (:mm:ss.s) or 9 (:mm:ss.ss).
func FormatNumber(v float64, format string) string {
	if !strings.Contains(format, "%") {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	if strings.HasSuffix(format, "m") {
		width, frac := sexagesimalSpec(format)
		return formatSexagesimal(v, width, frac)
	}
	return fmt.Sprintf(format, v)
}

func sexagesimalSpec(format string) (width, frac int) {
	spec := strings.TrimSuffix(strings.TrimPrefix(format, "%"), "m")
	w, f, found := strings.Cut(spec, ".")
	width, _ = strconv.Atoi(w)
	if found {
		frac, _ = strconv.Atoi(f)
	}
	return width, frac
}

func formatSexagesimal(v float64, width, frac int) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}

	var out string
	switch frac {
	case 3:
		total := int(math.Round(v * 60))
		out = fmt.Sprintf("%d:%02d", total/60, total%60)
	case 5:
		total := int(math.Round(v * 600))
		out = fmt.Sprintf("%d:%02d.%d", total/600, (total%600)/10, total%10)
	case 8:
		total := int(math.Round(v * 36000))
		out = fmt.Sprintf("%d:%02d:%02d.%d", total/36000, (total%36000)/600, (total%600)/10, total%10)
	case 9:
		total := int(math.Round(v * 360000))
		out = fmt.Sprintf("%d:%02d:%02d.%02d", total/360000, (total%360000)/6000, (total%6000)/100, total%100)
	default:
		total := int(math.Round(v * 3600))
		out = fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
	}
	out = sign + out
	if len(out) < width {
		out = strings.Repeat(" ", width-len(out)) + out
	}
	return out
}
