// Package dateparse turns free-text genealogical dates into a normalized
// value with precision, qualifier and ambiguity. Parse is total: every
// input yields a Result and nothing panics.
package dateparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

// Confidence levels assigned by Parse.
const (
	ConfidenceExact     = 1.0
	ConfidenceQualified = 0.7
	ConfidenceRange     = 0.7
	ConfidenceSlashDate = 0.5
	ConfidenceNone      = 0.0
)

// MaxRangeSpanYears is the widest BET..AND span that is still considered
// a single plausible generation.
const MaxRangeSpanYears = 40

// Result is the outcome of parsing one raw date.
type Result struct {
	Normalized string
	Precision  domain.DatePrecision
	Qualifier  domain.DateQualifier
	Confidence float64
	Ambiguous  bool
}

// AutoApplicable reports whether the result may be written into a canonical
// date field. Qualified, ambiguous, range and empty results never are.
func (r Result) AutoApplicable() bool {
	return r.Normalized != "" &&
		!r.Qualifier.IsSet() &&
		!r.Ambiguous &&
		r.Precision != domain.PrecisionRange &&
		r.Precision != domain.PrecisionUnknown
}

var qualifierTokens = map[string]domain.DateQualifier{
	"about":      domain.QualifierAbout,
	"abt":        domain.QualifierAbout,
	"circa":      domain.QualifierAbout,
	"ca":         domain.QualifierAbout,
	"before":     domain.QualifierBefore,
	"bef":        domain.QualifierBefore,
	"after":      domain.QualifierAfter,
	"aft":        domain.QualifierAfter,
	"estimated":  domain.QualifierEstimated,
	"est":        domain.QualifierEstimated,
	"calculated": domain.QualifierCalculated,
	"calc":       domain.QualifierCalculated,
	"cal":        domain.QualifierCalculated,
}

var renderQualifier = map[domain.DateQualifier]string{
	domain.QualifierAbout:      "ABT",
	domain.QualifierBefore:     "BEF",
	domain.QualifierAfter:      "AFT",
	domain.QualifierEstimated:  "EST",
	domain.QualifierCalculated: "CAL",
}

var monthNames = map[string]int{
	"jan": 1, "january": 1,
	"feb": 2, "february": 2,
	"mar": 3, "march": 3,
	"apr": 4, "april": 4,
	"may": 5,
	"jun": 6, "june": 6,
	"jul": 7, "july": 7,
	"aug": 8, "august": 8,
	"sep": 9, "sept": 9, "september": 9,
	"oct": 10, "october": 10,
	"nov": 11, "november": 11,
	"dec": 12, "december": 12,
}

var (
	rangeRe        = regexp.MustCompile(`^bet(?:ween)?\s+(\d{3,4})\s+and\s+(\d{3,4})$`)
	isoDayRe       = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	slashDayRe     = regexp.MustCompile(`^(\d{1,2})[/.-](\d{1,2})[/.-](\d{4})$`)
	ymdSlashRe     = regexp.MustCompile(`^(\d{4})/(\d{1,2})/(\d{1,2})$`)
	dayMonYearRe   = regexp.MustCompile(`^(\d{1,2})\s+([a-z]+)\.?,?\s+(\d{4})$`)
	monDayYearRe   = regexp.MustCompile(`^([a-z]+)\.?\s+(\d{1,2}),?\s+(\d{4})$`)
	monYearRe      = regexp.MustCompile(`^([a-z]+)\.?,?\s+(\d{4})$`)
	numMonYearRe   = regexp.MustCompile(`^(\d{1,2})[/\s.-](\d{4})$`)
	isoMonthRe     = regexp.MustCompile(`^(\d{4})-(\d{1,2})$`)
	yearOnlyRe     = regexp.MustCompile(`^(\d{4})$`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

// Parse interprets raw. Grammars are tried in a fixed order after an
// optional leading qualifier is stripped.
func Parse(raw string) Result {
	s := strings.ToLower(strings.TrimSpace(whitespaceRuns.ReplaceAllString(raw, " ")))

	qualifier := domain.QualifierNone
	if head, rest, found := strings.Cut(s, " "); found {
		if q, ok := qualifierTokens[strings.TrimSuffix(head, ".")]; ok {
			qualifier = q
			s = strings.TrimSpace(rest)
		}
	} else if q, ok := qualifierTokens[strings.TrimSuffix(s, ".")]; ok {
		// qualifier with nothing to qualify
		return unparseable(q)
	}
	if s == "" {
		return unparseable(qualifier)
	}

	if m := rangeRe.FindStringSubmatch(s); m != nil {
		return parseRange(m[1], m[2], qualifier)
	}

	if m := isoDayRe.FindStringSubmatch(s); m != nil {
		if r, ok := dayResult(atoi(m[1]), atoi(m[2]), atoi(m[3]), qualifier); ok {
			return r
		}
	}

	if m := slashDayRe.FindStringSubmatch(s); m != nil {
		if r, ok := parseSlashDate(atoi(m[1]), atoi(m[2]), atoi(m[3]), qualifier); ok {
			return r
		}
	}

	if m := ymdSlashRe.FindStringSubmatch(s); m != nil {
		if r, ok := dayResult(atoi(m[1]), atoi(m[2]), atoi(m[3]), qualifier); ok {
			return r
		}
	}

	if m := dayMonYearRe.FindStringSubmatch(s); m != nil {
		if month, ok := monthNames[m[2]]; ok {
			if r, ok := dayResult(atoi(m[3]), month, atoi(m[1]), qualifier); ok {
				return r
			}
		}
	}

	if m := monDayYearRe.FindStringSubmatch(s); m != nil {
		if month, ok := monthNames[m[1]]; ok {
			if r, ok := dayResult(atoi(m[3]), month, atoi(m[2]), qualifier); ok {
				return r
			}
		}
	}

	if m := monYearRe.FindStringSubmatch(s); m != nil {
		if month, ok := monthNames[m[1]]; ok {
			return monthResult(atoi(m[2]), month, qualifier)
		}
	}

	if m := numMonYearRe.FindStringSubmatch(s); m != nil {
		if month := atoi(m[1]); month >= 1 && month <= 12 {
			return monthResult(atoi(m[2]), month, qualifier)
		}
	}

	if m := isoMonthRe.FindStringSubmatch(s); m != nil {
		if month := atoi(m[2]); month >= 1 && month <= 12 {
			return monthResult(atoi(m[1]), month, qualifier)
		}
	}

	if m := yearOnlyRe.FindStringSubmatch(s); m != nil {
		return Result{
			Normalized: fmt.Sprintf("%04d", atoi(m[1])),
			Precision:  domain.PrecisionYear,
			Qualifier:  qualifier,
			Confidence: singleConfidence(qualifier),
		}
	}

	return unparseable(qualifier)
}

// Render formats r so that Parse(Render(r)) == r for every non-ambiguous result.
func Render(r Result) string {
	var body string
	switch r.Precision {
	case domain.PrecisionRange:
		start, end, ok := strings.Cut(r.Normalized, "/")
		if !ok {
			return ""
		}
		body = "BET " + start + " AND " + end
	case domain.PrecisionDay, domain.PrecisionMonth, domain.PrecisionYear:
		body = r.Normalized
	default:
		return ""
	}
	if prefix, ok := renderQualifier[r.Qualifier]; ok {
		return prefix + " " + body
	}
	return body
}

func parseRange(a, b string, q domain.DateQualifier) Result {
	start, end := atoi(a), atoi(b)
	if start > end {
		start, end = end, start
	}
	return Result{
		Normalized: fmt.Sprintf("%04d/%04d", start, end),
		Precision:  domain.PrecisionRange,
		Qualifier:  q,
		Confidence: ConfidenceRange,
		Ambiguous:  end-start > MaxRangeSpanYears,
	}
}

// parseSlashDate resolves NN/NN/YYYY. When both MM/DD and DD/MM are valid
// and name different days the MM/DD reading is kept and flagged ambiguous.
func parseSlashDate(first, second, year int, q domain.DateQualifier) (Result, bool) {
	mdOK := validDate(year, first, second)
	dmOK := validDate(year, second, first)

	switch {
	case mdOK && dmOK && first != second:
		r, _ := dayResult(year, first, second, q)
		r.Ambiguous = true
		r.Confidence = ConfidenceSlashDate
		return r, true
	case mdOK:
		return dayResult(year, first, second, q)
	case dmOK:
		return dayResult(year, second, first, q)
	}
	return Result{}, false
}

func dayResult(year, month, day int, q domain.DateQualifier) (Result, bool) {
	if !validDate(year, month, day) {
		return Result{}, false
	}
	return Result{
		Normalized: fmt.Sprintf("%04d-%02d-%02d", year, month, day),
		Precision:  domain.PrecisionDay,
		Qualifier:  q,
		Confidence: singleConfidence(q),
	}, true
}

func monthResult(year, month int, q domain.DateQualifier) Result {
	return Result{
		Normalized: fmt.Sprintf("%04d-%02d", year, month),
		Precision:  domain.PrecisionMonth,
		Qualifier:  q,
		Confidence: singleConfidence(q),
	}
}

func unparseable(q domain.DateQualifier) Result {
	return Result{
		Precision:  domain.PrecisionUnknown,
		Qualifier:  q,
		Confidence: ConfidenceNone,
		Ambiguous:  true,
	}
}

func singleConfidence(q domain.DateQualifier) float64 {
	if q.IsSet() {
		return ConfidenceQualified
	}
	return ConfidenceExact
}

func validDate(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && int(t.Month()) == month && t.Day() == day
}

// atoi is only called on regexp digit groups of at most four characters.
func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
