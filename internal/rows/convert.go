package rows

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cast"
)

// ConvertAssign 把 src 赋值给 dest，行为参考 database/sql 的 Scan。
// src 可能是驱动的原始值，也可能是按照 ScanType 扫描出来的 sql.NullXXX
func ConvertAssign(dest, src any) error {
	switch d := dest.(type) {
	case *any:
		*d = src
		return nil
	case sql.Scanner:
		if v, ok := src.(driver.Valuer); ok {
			val, err := v.Value()
			if err != nil {
				return err
			}
			return d.Scan(val)
		}
		return d.Scan(src)
	}

	if v, ok := src.(driver.Valuer); ok {
		val, err := v.Value()
		if err != nil {
			return err
		}
		src = val
	}
	dpv := reflect.ValueOf(dest)
	if dpv.Kind() != reflect.Pointer || dpv.IsNil() {
		return fmt.Errorf("rows: 目标必须是非空指针, 实际是 %T", dest)
	}
	if src == nil {
		dv := dpv.Elem()
		switch dv.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
			dv.Set(reflect.Zero(dv.Type()))
			return nil
		}
		return fmt.Errorf("rows: 无法把 NULL 转换成 %s", dv.Type())
	}
	if b, ok := src.([]byte); ok {
		if d, ok := dest.(*[]byte); ok {
			*d = append([]byte(nil), b...)
			return nil
		}
		src = string(b)
	}

	var err error
	switch d := dest.(type) {
	case *string:
		*d, err = cast.ToStringE(src)
	case *[]byte:
		var s string
		s, err = cast.ToStringE(src)
		*d = []byte(s)
	case *bool:
		*d, err = cast.ToBoolE(src)
	case *int:
		*d, err = cast.ToIntE(src)
	case *int8:
		*d, err = cast.ToInt8E(src)
	case *int16:
		*d, err = cast.ToInt16E(src)
	case *int32:
		*d, err = cast.ToInt32E(src)
	case *int64:
		*d, err = cast.ToInt64E(src)
	case *uint:
		*d, err = cast.ToUintE(src)
	case *uint8:
		*d, err = cast.ToUint8E(src)
	case *uint16:
		*d, err = cast.ToUint16E(src)
	case *uint32:
		*d, err = cast.ToUint32E(src)
	case *uint64:
		*d, err = cast.ToUint64E(src)
	case *float32:
		*d, err = cast.ToFloat32E(src)
	case *float64:
		*d, err = cast.ToFloat64E(src)
	case *time.Time:
		*d, err = cast.ToTimeE(src)
	default:
		return assignReflect(dpv.Elem(), src)
	}
	if err != nil {
		return fmt.Errorf("rows: 无法把 %T 转换成 %T: %w", src, dest, err)
	}
	return nil
}

func assignReflect(dv reflect.Value, src any) error {
	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dv.Type()) {
		dv.Set(sv)
		return nil
	}
	if dv.Kind() == reflect.Pointer {
		if dv.IsNil() {
			dv.Set(reflect.New(dv.Type().Elem()))
		}
		return ConvertAssign(dv.Interface(), src)
	}
	if sv.Type().ConvertibleTo(dv.Type()) {
		dv.Set(sv.Convert(dv.Type()))
		return nil
	}
	return fmt.Errorf("rows: 不支持把 %T 转换成 %s", src, dv.Type())
}
