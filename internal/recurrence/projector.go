package recurrence

import (
	"sort"
	"strconv"
	"time"
)

// Source 可投影的日期源（生日、纪念日等重要日期）
type Source struct {
	ID        string
	Title     string
	Date      time.Time
	Recurring bool // 是否每年重复
}

// Occurrence 日期源在某个窗口中的一次具体出现；只在查询时计算，不落库
type Occurrence struct {
	ID        string
	SourceID  string
	Title     string
	Date      time.Time
	Recurring bool
}

// NextOccurrence 返回不早于 ref 的下一次出现。
// 非重复日期原样返回；重复日期取 ref 所在年份的同月同日（月末截断），早于 ref 则顺延一年。
func NextOccurrence(source time.Time, recurring bool, ref time.Time) time.Time {
	if !recurring {
		return source
	}
	src := NormalizeDate(source)
	r := NormalizeDate(ref)

	candidate := ClampedDate(r.Year(), src.Month(), src.Day())
	if candidate.Before(r) {
		candidate = ClampedDate(r.Year()+1, src.Month(), src.Day())
	}
	return candidate
}

// OccurrencesInRange 将日期源展开到闭区间 [from, to]。
//
// 重复日期遍历 from.Year()-1 到 to.Year()+1 的候选年份以覆盖跨年边界。
// 结果按日期升序、同日按标题字典序排列；ID 由 sourceID 与年份（或具体日期）派生，
// 多次调用结果完全一致。
func OccurrencesInRange(sources []Source, from, to time.Time) []Occurrence {
	from = NormalizeDate(from)
	to = NormalizeDate(to)
	if to.Before(from) {
		return nil
	}

	seen := make(map[string]struct{})
	var result []Occurrence
	add := func(o Occurrence) {
		if _, ok := seen[o.ID]; ok {
			return
		}
		seen[o.ID] = struct{}{}
		result = append(result, o)
	}

	for _, src := range sources {
		if !src.Recurring {
			d := NormalizeDate(src.Date)
			if inRange(d, from, to) {
				add(occurrenceOf(src, d))
			}
			continue
		}

		anchor := NormalizeDate(src.Date)
		month, day := anchor.Month(), anchor.Day()
		for y := from.Year() - 1; y <= to.Year()+1; y++ {
			d := ClampedDate(y, month, day)
			if !inRange(d, from, to) {
				continue
			}
			add(occurrenceOf(src, d))
		}
	}

	sortOccurrences(result)
	return result
}

// UpcomingOccurrences 返回每个日期源在 [ref, ref+days] 内的下一次出现，
// 每个日期源至多一条，ID 与排序规则同 OccurrencesInRange。
func UpcomingOccurrences(sources []Source, ref time.Time, days int) []Occurrence {
	if days < 0 {
		return nil
	}
	from := NormalizeDate(ref)
	to := from.AddDate(0, 0, days)

	var result []Occurrence
	for _, src := range sources {
		next := NormalizeDate(NextOccurrence(src.Date, src.Recurring, from))
		if inRange(next, from, to) {
			result = append(result, occurrenceOf(src, next))
		}
	}
	sortOccurrences(result)
	return result
}

// occurrenceOf 重复日期的 ID 取年份，非重复日期取具体日期
func occurrenceOf(src Source, d time.Time) Occurrence {
	o := Occurrence{
		SourceID:  src.ID,
		Title:     src.Title,
		Date:      d,
		Recurring: src.Recurring,
	}
	if src.Recurring {
		o.ID = src.ID + ":" + strconv.Itoa(d.Year())
	} else {
		o.ID = src.ID + ":" + DateKey(d)
	}
	return o
}

func sortOccurrences(result []Occurrence) {
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		if result[i].Title != result[j].Title {
			return result[i].Title < result[j].Title
		}
		return result[i].ID < result[j].ID
	})
}

func inRange(d, from, to time.Time) bool {
	return !d.Before(from) && !d.After(to)
}
