// Package dates turns the free-form date expressions seen in listings and in
// model output into calendar dates. Failure to parse is a value, not an
// error: callers treat Unparseable as missing information.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

type Kind int

const (
	// Date means the text resolved to a concrete calendar date.
	Date Kind = iota
	// NoDeadline means the text explicitly states there is no fixed date
	// ("rolling", "ongoing").
	NoDeadline
	// Unparseable means the text carried no recoverable date.
	Unparseable
)

type Result struct {
	Kind Kind
	Date time.Time
}

var relativeExpr = regexp.MustCompile(`^(\d+)\s+(hour|day|week|month|year)s?\s+ago$`)

// Markers the model (or a site) uses to say a deadline does not exist.
var noDeadlineMarkers = []string{
	"rolling", "ongoing", "specified", "quarterly", "no deadline", "n/a",
}

// Normalize parses text against ref. Relative phrases ("2 weeks ago") are
// resolved from ref; anything else goes through a permissive parser.
func Normalize(text string, ref time.Time) Result {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return Result{Kind: Unparseable}
	}

	for _, marker := range noDeadlineMarkers {
		if strings.Contains(text, marker) {
			return Result{Kind: NoDeadline}
		}
	}

	if m := relativeExpr.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		var d time.Time
		switch m[2] {
		case "hour":
			d = ref.Add(-time.Duration(n) * time.Hour)
		case "day":
			d = ref.AddDate(0, 0, -n)
		case "week":
			d = ref.AddDate(0, 0, -7*n)
		case "month":
			d = ref.AddDate(0, -n, 0)
		case "year":
			d = ref.AddDate(-n, 0, 0)
		}
		return Result{Kind: Date, Date: d}
	}

	parsed, err := dateparse.ParseAny(text)
	if err != nil {
		return Result{Kind: Unparseable}
	}
	return Result{Kind: Date, Date: parsed}
}
