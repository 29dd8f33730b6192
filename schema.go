package ivm

import (
	"reflect"
	"strings"
	"sync"
)

// fieldCache stores resolved field paths to avoid repeated reflection.
var fieldCache sync.Map // map[reflect.Type]map[string]string

// FieldOf resolves a Go struct field path to its bson field name using bson
// struct tags, the same sync.Map-cached reflection gmqb.Field[T] used to
// keep wire queries in sync with struct definitions — reused here so
// Declaration stages can reference record fields by the Go name instead of
// a string someone has to keep matching a tag by hand. The type parameter T
// is the struct the pipeline's source records are modeled after; fieldPath
// is the Go field name, or a dotted path into a nested struct.
//
// FieldOf panics if fieldPath does not exist — a declaration is built once
// at startup, so a typo here is a programming error, not something to
// recover from at runtime.
//
// Example:
//
//	type Order struct {
//	    Category string  `bson:"category"`
//	    Price    float64 `bson:"price"`
//	}
//	decl.GroupBy([]string{ivm.FieldOf[Order]("Category")}, "items")
func FieldOf[T any](fieldPath string) string {
	var zero T
	t := reflect.TypeOf(zero)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	fields := getOrBuildFieldMap(t)
	name, ok := fields[fieldPath]
	if !ok {
		panic(newProgrammingError("field %q does not exist in struct %s", fieldPath, t.Name()))
	}
	return name
}

func getOrBuildFieldMap(t reflect.Type) map[string]string {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.(map[string]string)
	}
	fields := make(map[string]string)
	buildFieldMap(t, "", "", fields)
	fieldCache.Store(t, fields)
	return fields
}

func buildFieldMap(t reflect.Type, goPrefix, bsonPrefix string, out map[string]string) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		goPath := sf.Name
		if goPrefix != "" {
			goPath = goPrefix + "." + sf.Name
		}

		bsonName := resolveBsonTag(sf)
		if bsonName == "-" {
			continue
		}

		bsonPath := bsonName
		if bsonPrefix != "" {
			bsonPath = bsonPrefix + "." + bsonName
		}
		out[goPath] = bsonPath

		ft := sf.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft.String() != "time.Time" &&
			!strings.HasPrefix(ft.PkgPath(), "go.mongodb.org") {
			buildFieldMap(ft, goPath, bsonPath, out)
		}
	}
}

func resolveBsonTag(sf reflect.StructField) string {
	tag := sf.Tag.Get("bson")
	if tag == "" {
		return strings.ToLower(sf.Name)
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return strings.ToLower(sf.Name)
	}
	return name
}
