package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/IshaanNene/ListingScout/internal/types"
)

// contactForPrice are the literal price labels used instead of a number.
var contactForPrice = []string{"연락요망", "contact for price"}

var priceStripper = strings.NewReplacer(",", "", ";", "", " ", "", "\u00a0", "", "원", "", "₩", "")

// NormalizePrice converts a displayed price into an integer amount.
// It returns ErrContactForPrice for the contact-for-price label and
// ErrUnparseablePrice for anything else that is not a non-negative integer.
func NormalizePrice(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	for _, label := range contactForPrice {
		if strings.EqualFold(s, label) {
			return 0, types.ErrContactForPrice
		}
	}
	if types.IsSentinel(s) {
		return 0, fmt.Errorf("%w: %q", types.ErrUnparseablePrice, raw)
	}

	s = priceStripper.Replace(s)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %q", types.ErrUnparseablePrice, raw)
	}
	return v, nil
}

// Days per unit. Months are a fixed 30 days, not calendar months.
const (
	daysPerWeek  = 7
	daysPerMonth = 30
)

var (
	koreanRelative  = regexp.MustCompile(`^(\d+)\s*(분|시간|일|주|달|개월)\s*전$`)
	englishRelative = regexp.MustCompile(`(?i)^(\d+)\s*(minutes?|mins?|hours?|hrs?|days?|weeks?|months?)\s+ago$`)
)

// NormalizeDate converts a relative phrase such as "3일 전" or
// "2 weeks ago" into the calendar day it refers to, relative to now.
// The result is truncated to midnight in now's location.
func NormalizeDate(raw string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "방금 전", "just now":
		return truncateDay(now), nil
	}

	var n int
	var unit string
	if m := koreanRelative.FindStringSubmatch(s); m != nil {
		n, _ = strconv.Atoi(m[1])
		unit = m[2]
	} else if m := englishRelative.FindStringSubmatch(s); m != nil {
		n, _ = strconv.Atoi(m[1])
		unit = strings.TrimSuffix(strings.ToLower(m[2]), "s")
	} else {
		return time.Time{}, fmt.Errorf("%w: %q", types.ErrUnknownDate, raw)
	}

	var t time.Time
	switch unit {
	case "분", "minute", "min":
		t = now.Add(-time.Duration(n) * time.Minute)
	case "시간", "hour", "hr":
		t = now.Add(-time.Duration(n) * time.Hour)
	case "일", "day":
		t = now.AddDate(0, 0, -n)
	case "주", "week":
		t = now.AddDate(0, 0, -n*daysPerWeek)
	case "달", "개월", "month":
		t = now.AddDate(0, 0, -n*daysPerMonth)
	default:
		return time.Time{}, fmt.Errorf("%w: %q", types.ErrUnknownDate, raw)
	}
	return truncateDay(t), nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
