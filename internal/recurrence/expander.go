package recurrence

import (
	"fmt"
	"time"
)

// Template 周期任务模板的重复参数
type Template struct {
	Anchor   time.Time  // 首次到期日，按 UTC 取日历日
	Unit     Unit       // 重复单位
	Interval int        // 重复间隔，>= 1
	EndDate  *time.Time // 可选：截止日期（含），按 UTC 取日历日
}

// storedDate 取已存储日期的日历日。
// 日期字段以 UTC 正午存储，驱动可能按会话时区返回，需先转回 UTC 再截取。
func storedDate(t time.Time) time.Time {
	return NormalizeDate(t.UTC())
}

// Validate 校验模板参数
func (t Template) Validate() error {
	if !t.Unit.Recurring() {
		if t.Unit == UnitNone {
			return ErrUnitNotRecurring
		}
		return fmt.Errorf("%w: %q", ErrUnknownUnit, t.Unit)
	}
	if t.Interval < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, t.Interval)
	}
	return nil
}

// At 返回第 k 次出现的日期。
// 每次都从 anchor 推算，避免逐月累加时月末截断造成的漂移（1/31 → 2/28 → 3/28）。
func (t Template) At(k int) time.Time {
	return AddUnits(storedDate(t.Anchor), t.Unit, k*t.Interval)
}

// FirstIndexOnOrAfter 返回第一个不早于 today 的出现序号。
//
// 两阶段：先按完整单位数整除 interval 一次性跳过积压的周期，
// 再逐个周期前进（跳跃后最多剩余一个周期的余量），
// 即使模板已逾期多年也不会产生无界循环。
func (t Template) FirstIndexOnOrAfter(today time.Time) int {
	anchor := storedDate(t.Anchor)
	if !anchor.Before(today) {
		return 0
	}
	k := UnitsBetween(anchor, today, t.Unit) / t.Interval
	for t.At(k).Before(today) {
		k++
	}
	return k
}

// PendingDueDates 计算 [today, today+horizonDays] 内尚未实例化的到期日。
//
// existing 为该模板已有实例的日期键集合（DateKey）。结果按日期升序，
// 不包含 existing 中已存在的日期，也不会超过模板的截止日期。
func PendingDueDates(t Template, existing map[string]struct{}, today time.Time, horizonDays int) ([]time.Time, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	today = NormalizeDate(today)
	limit := today.AddDate(0, 0, horizonDays)
	if t.EndDate != nil {
		if end := storedDate(*t.EndDate); end.Before(limit) {
			limit = end
		}
	}

	var due []time.Time
	for k := t.FirstIndexOnOrAfter(today); ; k++ {
		cursor := t.At(k)
		if cursor.After(limit) {
			break
		}
		if _, ok := existing[DateKey(cursor)]; ok {
			continue
		}
		due = append(due, cursor)
	}
	return due, nil
}
