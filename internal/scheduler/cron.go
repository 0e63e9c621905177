// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronExpr is a parsed five-field cron expression: minute, hour,
// day-of-month, month, day-of-week, each expanded to the set of values
// it matches.
type CronExpr struct {
	minute     []int
	hour       []int
	dayOfMonth []int
	month      []int
	dayOfWeek  []int
}

// fieldBounds pairs a cron field's position with its valid [min, max] range.
type fieldBounds struct {
	label string
	min   int
	max   int
}

var cronFields = [5]fieldBounds{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// cronAliases maps the common nicknames onto their five-field equivalent.
var cronAliases = map[string]string{
	"@hourly":   "0 * * * *",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@weekly":   "0 0 * * 0",
	"@monthly":  "0 0 1 * *",
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
}

// ParseCron parses a cron expression of the form
// "minute hour day-of-month month day-of-week", or one of the @hourly,
// @daily, @weekly, @monthly, @yearly aliases.
func ParseCron(expr string) (*CronExpr, error) {
	if alias, ok := cronAliases[strings.ToLower(expr)]; ok {
		expr = alias
	}

	fields := strings.Fields(expr)
	if len(fields) != len(cronFields) {
		return nil, fmt.Errorf("expected %d fields, got %d", len(cronFields), len(fields))
	}

	parsed := make([][]int, len(cronFields))
	for i, bounds := range cronFields {
		values, err := parseField(fields[i], bounds.min, bounds.max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", bounds.label, err)
		}
		parsed[i] = values
	}

	return &CronExpr{
		minute:     parsed[0],
		hour:       parsed[1],
		dayOfMonth: parsed[2],
		month:      parsed[3],
		dayOfWeek:  parsed[4],
	}, nil
}

// parseField expands one cron field — a wildcard, a comma-separated list
// of single values, ranges, and/or step expressions — into the
// deduplicated set of values it matches within [min, max].
func parseField(field string, min, max int) ([]int, error) {
	if field == "*" {
		return fullRange(min, max), nil
	}

	var matched []int
	for _, part := range strings.Split(field, ",") {
		values, err := parseRangeOrStep(part, min, max)
		if err != nil {
			return nil, err
		}
		matched = append(matched, values...)
	}
	return dedup(matched), nil
}

// parseRangeOrStep handles a single comma-delimited piece of a cron
// field: a literal number, an N-M range, optionally suffixed with
// /step (e.g. "1-10/2", "*/5", "7").
func parseRangeOrStep(part string, min, max int) ([]int, error) {
	step := 1
	if slash := strings.IndexByte(part, '/'); slash != -1 {
		var err error
		step, err = strconv.Atoi(part[slash+1:])
		if err != nil || step <= 0 {
			return nil, fmt.Errorf("invalid step: %s", part[slash+1:])
		}
		part = part[:slash]
	}

	start, end, err := parseBounds(part, min, max)
	if err != nil {
		return nil, err
	}
	if start < min || start > max {
		return nil, fmt.Errorf("value %d out of range [%d-%d]", start, min, max)
	}
	if end < min || end > max {
		return nil, fmt.Errorf("value %d out of range [%d-%d]", end, min, max)
	}
	if start > end {
		return nil, fmt.Errorf("invalid range: %d > %d", start, end)
	}

	values := make([]int, 0, (end-start)/step+1)
	for v := start; v <= end; v += step {
		values = append(values, v)
	}
	return values, nil
}

// parseBounds resolves the start/end of a single field part before any
// step is applied: "*" spans [min,max], "A-B" is a literal range, and a
// bare number is a single-value range.
func parseBounds(part string, min, max int) (start, end int, err error) {
	switch {
	case part == "*":
		return min, max, nil
	case strings.ContainsRune(part, '-'):
		dash := strings.IndexByte(part, '-')
		start, err = strconv.Atoi(part[:dash])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid range start: %s", part[:dash])
		}
		end, err = strconv.Atoi(part[dash+1:])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid range end: %s", part[dash+1:])
		}
		return start, end, nil
	default:
		start, err = strconv.Atoi(part)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid value: %s", part)
		}
		return start, start, nil
	}
}

func fullRange(min, max int) []int {
	values := make([]int, max-min+1)
	for i := range values {
		values[i] = min + i
	}
	return values
}

// Next returns the first instant strictly after from that satisfies
// every field of c, searching minute-by-minute (skipping whole months,
// days, or hours that can't possibly match) up to four years out.
func (c *CronExpr) Next(from time.Time) time.Time {
	t := from.Truncate(time.Minute).Add(time.Minute)
	deadline := from.Add(4 * 365 * 24 * time.Hour)

	for t.Before(deadline) {
		if !containsInt(c.month, int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
			continue
		}

		// A day-of-month and a day-of-week restriction are both
		// honored; a field left as "*" trivially matches everything.
		if !containsInt(c.dayOfMonth, t.Day()) || !containsInt(c.dayOfWeek, int(t.Weekday())) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
			continue
		}

		if !containsInt(c.hour, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
			continue
		}

		if !containsInt(c.minute, t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}

		return t
	}

	return time.Time{}
}

func containsInt(values []int, want int) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// dedup drops repeated values while preserving first-seen order; cron
// fields are small enough that an explicit sort isn't worth the code.
func dedup(values []int) []int {
	seen := make(map[int]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
