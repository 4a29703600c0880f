package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// FormatSnowflake renders a discord snowflake id as its decimal string
func FormatSnowflake(id int64) string {
	return strconv.FormatInt(id, 10)
}

func ContainsInt64Slice(slice []int64, search int64) bool {
	for _, v := range slice {
		if v == search {
			return true
		}
	}

	return false
}

func ContainsStringSlice(slice []string, search string) bool {
	for _, v := range slice {
		if v == search {
			return true
		}
	}

	return false
}

// ParseDuration parses a user supplied duration string like "1d3h30m".
// A bare number is interpreted as minutes. Returns a UserError on garbage.
func ParseDuration(str string) (time.Duration, error) {
	var dur time.Duration
	var numBuf, modifierBuf string

	flush := func() error {
		if numBuf == "" {
			return NewUserError("invalid duration: " + str)
		}

		d, err := parseDurationComponent(numBuf, modifierBuf)
		if err != nil {
			return err
		}

		dur += d
		numBuf = ""
		modifierBuf = ""
		return nil
	}

	for _, v := range str {
		if unicode.Is(unicode.White_Space, v) {
			continue
		}

		if unicode.IsNumber(v) {
			if modifierBuf != "" {
				if err := flush(); err != nil {
					return 0, err
				}
			}
			numBuf += string(v)
		} else {
			modifierBuf += string(v)
		}
	}

	if numBuf == "" && modifierBuf == "" {
		return 0, NewUserError("empty duration")
	}

	if err := flush(); err != nil {
		return 0, err
	}

	return dur, nil
}

func parseDurationComponent(numStr, modifierStr string) (time.Duration, error) {
	parsedNum, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, NewUserError("invalid duration number: " + numStr)
	}

	parsedDur := time.Duration(parsedNum)

	switch {
	case strings.HasPrefix(modifierStr, "s"):
		parsedDur *= time.Second
	case modifierStr == "", strings.HasPrefix(modifierStr, "m") && !strings.HasPrefix(modifierStr, "mo"):
		parsedDur *= time.Minute
	case strings.HasPrefix(modifierStr, "h"):
		parsedDur *= time.Hour
	case strings.HasPrefix(modifierStr, "d"):
		parsedDur *= time.Hour * 24
	case strings.HasPrefix(modifierStr, "w"):
		parsedDur *= time.Hour * 24 * 7
	case strings.HasPrefix(modifierStr, "mo"):
		parsedDur *= time.Hour * 24 * 30
	default:
		return 0, NewUserError("unknown duration modifier: " + modifierStr)
	}

	return parsedDur, nil
}

// HumanizeDuration formats a duration down to minute precision for mod log
// entries and DMs ("1 day 3 hours 30 minutes").
func HumanizeDuration(d time.Duration) string {
	if d < time.Minute {
		return "less than a minute"
	}

	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	parts := make([]string, 0, 3)
	if days > 0 {
		parts = append(parts, pluralize(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, pluralize(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, pluralize(minutes, "minute"))
	}

	return strings.Join(parts, " ")
}

func pluralize(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %s", n, word+"s")
}

// FormatCount renders an ordinal for "warned for the 3rd time" messages
func FormatCount(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}

	return strconv.Itoa(n) + suffix
}
