package schedule

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// PLAN MATCHING
// =============================================================================

// Matching errors, surfaced to handlers so they can ask the user to clarify.
var (
	ErrNoDateToken    = errors.New("no date reference found in request")
	ErrAmbiguousMatch = errors.New("request matches more than one scheduled notification")
	ErrNoPlanMatched  = errors.New("no scheduled notification matches the request")
)

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var (
	// "July 3", "3rd of July", "july 3rd"
	reMonthDay = regexp.MustCompile(`(?i)\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	reDayMonth = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\b`)

	schedulingVocabRe = regexp.MustCompile(`(?i)\b(remind(?:er)?|notification|notify|sms|text|message|schedule[d]?|alert)\b`)
)

// extractDateToken pulls a month/day reference out of free text. It tries
// explicit month-day phrases first, then the natural-language patterns
// (tomorrow, in N days, next weekday, at TIME) resolved against now.
func extractDateToken(text string, now time.Time, loc *time.Location) (month time.Month, day int, ok bool) {
	if m := reMonthDay.FindStringSubmatch(text); m != nil {
		mo := monthNames[strings.ToLower(m[1])]
		d, _ := strconv.Atoi(m[2])
		return mo, d, true
	}
	if m := reDayMonth.FindStringSubmatch(text); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo := monthNames[strings.ToLower(m[2])]
		return mo, d, true
	}
	if at, found := InferScheduleTime(text, now, loc); found {
		return at.Month(), at.Day(), true
	}
	return 0, 0, false
}

// MatchPlan selects the scheduled plan a cancel/update utterance refers to.
//
// Candidates are scored: exact month/day match against the date token in
// the utterance scores 2, with a bonus point when scheduling vocabulary
// appears in the text. A unique top scorer wins; a tie is ambiguous; no
// date token in the utterance means nothing can be matched.
func MatchPlan(candidates []*PlanRecord, utterance string, now time.Time, loc *time.Location) (*PlanRecord, error) {
	if loc == nil {
		loc = time.Local
	}
	month, day, ok := extractDateToken(utterance, now, loc)
	if !ok {
		return nil, ErrNoDateToken
	}

	vocabBonus := 0
	if schedulingVocabRe.MatchString(utterance) {
		vocabBonus = 1
	}

	best := 0
	var winner *PlanRecord
	tied := false
	for _, rec := range candidates {
		if rec.Status != PlanScheduled || rec.Plan == nil || rec.Plan.ScheduleAt == nil {
			continue
		}
		at := rec.Plan.ScheduleAt.In(loc)
		score := 0
		if at.Month() == month && at.Day() == day {
			score = 2 + vocabBonus
		}
		if score == 0 {
			continue
		}
		switch {
		case score > best:
			best, winner, tied = score, rec, false
		case score == best:
			tied = true
		}
	}

	if winner == nil {
		return nil, ErrNoPlanMatched
	}
	if tied {
		return nil, ErrAmbiguousMatch
	}
	return winner, nil
}
