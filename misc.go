package ferromic

import (
	"flag"
	"fmt"
	"math"
	"strconv"
)

func PrintFlagDefaults() {
	flag.VisitAll(func(fg *flag.Flag) {
		fmt.Printf("--%s=\"%s\"\n\t%s\n", fg.Name, fg.DefValue, fg.Usage)
	})
}

// FormatOmega renders a statistic for the CSV tables. NaN is written
// literally so that strconv.ParseFloat round-trips it on read.
func FormatOmega(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseOmega is the inverse of FormatOmega. Empty fields (as written by
// other tooling for missing values) also map to NaN.
func ParseOmega(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
