package templates

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
)

// Funcs are available to every template
var Funcs = template.FuncMap{
	"price":    Price,
	"signed":   Signed,
	"compact":  Compact,
	"ago":      humanize.Time,
	"datetime": func(t time.Time) string { return t.Format("2006-01-02 15:04 MST") },
	"join":     strings.Join,
	"upper":    strings.ToUpper,
	"deref":    Deref,
}

// Price formats a value with two decimals and thousands separators
func Price(v float64) string {
	return humanize.CommafWithDigits(v, 2)
}

// Signed formats a value with an explicit sign and two decimals
func Signed(v float64) string {
	return fmt.Sprintf("%+.2f", v)
}

// Compact renders large numbers as 2.95T, 310.4B, 12.1M
func Compact(v float64) string {
	value, prefix := humanize.ComputeSI(v)
	switch prefix {
	case "G":
		prefix = "B"
	case "":
		return humanize.CommafWithDigits(v, 2)
	}
	return fmt.Sprintf("%s%s", humanize.FtoaWithDigits(value, 2), prefix)
}

// Deref returns the pointed-to float or zero
func Deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
