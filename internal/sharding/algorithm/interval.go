package algorithm

import (
	"strings"
	"time"

	"github.com/spf13/cast"

	base "github.com/meoying/dbkernel/internal/algorithm"
	"github.com/meoying/dbkernel/internal/errs"
)

const TypeInterval = "INTERVAL"

// Interval 按照时间间隔分片，目标名字以时间后缀结尾，例如 t_order_202401
type Interval struct {
	layout       string
	suffixLayout string
	lower        time.Time
	upper        time.Time
	amount       int
	unit         string
}

// javaLayouts 配置沿用 yyyy-MM-dd 这种写法，转换成 Go 的时间格式
var javaLayouts = strings.NewReplacer(
	"yyyy", "2006",
	"yy", "06",
	"MM", "01",
	"dd", "02",
	"HH", "15",
	"mm", "04",
	"ss", "05",
	"SSS", "000",
)

func NewInterval(props *base.Props) (Algorithm, error) {
	pattern, err := props.RequiredString("datetime-pattern")
	if err != nil {
		return nil, err
	}
	suffix, err := props.RequiredString("sharding-suffix-pattern")
	if err != nil {
		return nil, err
	}
	lowerStr, err := props.RequiredString("datetime-lower")
	if err != nil {
		return nil, err
	}
	amount, err := props.Int("datetime-interval-amount", 1)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, errs.NewInvalidConfigError("INTERVAL 的 datetime-interval-amount 必须大于 0")
	}
	res := &Interval{
		layout:       javaLayouts.Replace(pattern),
		suffixLayout: javaLayouts.Replace(suffix),
		amount:       amount,
		unit:         strings.ToUpper(props.String("datetime-interval-unit", "DAYS")),
	}
	if _, ok := intervalUnits[res.unit]; !ok {
		return nil, errs.NewInvalidConfigError("INTERVAL 不支持时间单位 %s", res.unit)
	}
	if res.lower, err = time.ParseInLocation(res.layout, lowerStr, time.UTC); err != nil {
		return nil, errs.NewInvalidConfigError("INTERVAL 的 datetime-lower %s 格式错误", lowerStr)
	}
	res.upper = time.Now().UTC()
	if upperStr := props.String("datetime-upper", ""); upperStr != "" {
		if res.upper, err = time.ParseInLocation(res.layout, upperStr, time.UTC); err != nil {
			return nil, errs.NewInvalidConfigError("INTERVAL 的 datetime-upper %s 格式错误", upperStr)
		}
	}
	return res, nil
}

var intervalUnits = map[string]func(t time.Time, n int) time.Time{
	"SECONDS": func(t time.Time, n int) time.Time { return t.Add(time.Duration(n) * time.Second) },
	"MINUTES": func(t time.Time, n int) time.Time { return t.Add(time.Duration(n) * time.Minute) },
	"HOURS":   func(t time.Time, n int) time.Time { return t.Add(time.Duration(n) * time.Hour) },
	"DAYS":    func(t time.Time, n int) time.Time { return t.AddDate(0, 0, n) },
	"MONTHS":  func(t time.Time, n int) time.Time { return t.AddDate(0, n, 0) },
	"YEARS":   func(t time.Time, n int) time.Time { return t.AddDate(n, 0, 0) },
}

func (*Interval) Type() string {
	return TypeInterval
}

func (i *Interval) parse(v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case []byte:
		v = string(val)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation(i.layout, s, time.UTC)
}

// each 遍历 [lower, upper] 中的每一个时间间隔
func (i *Interval) each(fn func(start, end time.Time) bool) {
	next := intervalUnits[i.unit]
	for cur := i.lower; !cur.After(i.upper); {
		end := next(cur, i.amount)
		if !fn(cur, end) {
			return
		}
		cur = end
	}
}

func (i *Interval) findBySuffix(targets []string, start time.Time) (string, bool) {
	suffix := start.Format(i.suffixLayout)
	for _, t := range targets {
		if strings.HasSuffix(t, suffix) {
			return t, true
		}
	}
	return "", false
}

func (i *Interval) Match(targets []string, value PreciseValue) (string, bool, error) {
	t, err := i.parse(value.Value)
	if err != nil {
		return "", false, errs.NewInvalidConfigError("INTERVAL 分片列 %s 的值 %v 不是时间", value.Column, value.Value)
	}
	var res string
	var ok bool
	i.each(func(start, end time.Time) bool {
		if !t.Before(start) && t.Before(end) {
			res, ok = i.findBySuffix(targets, start)
			return false
		}
		return true
	})
	return res, ok, nil
}

func (i *Interval) MatchRange(targets []string, value RangeValue) ([]string, error) {
	lo, hi := i.lower, i.upper
	var err error
	if value.Range.Lower != nil {
		if lo, err = i.parse(value.Range.Lower); err != nil {
			return allTargets(targets), nil
		}
	}
	if value.Range.Upper != nil {
		if hi, err = i.parse(value.Range.Upper); err != nil {
			return allTargets(targets), nil
		}
	}
	var res []string
	i.each(func(start, end time.Time) bool {
		if start.After(hi) {
			return false
		}
		if end.After(lo) {
			if t, ok := i.findBySuffix(targets, start); ok {
				res = append(res, t)
			}
		}
		return true
	})
	return res, nil
}
