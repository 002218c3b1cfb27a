package postgres

import (
	"reflect"
	"sync"

	"github.com/Masterminds/squirrel"
)

// Builder returns a squirrel builder with PostgreSQL placeholders.
func Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Columns lists the "db" tags of T in field order. Fields tagged "-" are
// skipped. Call once at construction; the result is reused.
func Columns[T any]() []string {
	var zero T
	t := reflect.TypeOf(zero)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	cols := make([]string, 0, t.NumField())
	for _, f := range fieldsOf(t) {
		cols = append(cols, f.column)
	}
	return cols
}

type taggedField struct {
	index  int
	column string
}

var fieldCache sync.Map // reflect.Type -> []taggedField

func fieldsOf(t reflect.Type) []taggedField {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]taggedField)
	}

	var fields []taggedField
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		fields = append(fields, taggedField{index: i, column: tag})
	}

	fieldCache.Store(t, fields)
	return fields
}

// ValueMap maps the db-tagged fields of v to their values, ready for
// squirrel SetMap.
func ValueMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	fields := fieldsOf(rv.Type())
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.column] = rv.Field(f.index).Interface()
	}
	return out
}
