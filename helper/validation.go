package helper

import (
	"fmt"
	"reflect"
	"strings"
)

// ValidateStructIsPopulated will check if any mandatory fields in cfg are missing.
// It uses struct tags to determine which fields are mandatory and the error text to fetch.
// The error text returned is just a list of the struct tags with key "errorTxt".
func ValidateStructIsPopulated(cfg interface{}) (err error) {
	errs := make([]string, 0)
	GetStructErrorTxt4UnsetFields(cfg, &errs)
	if len(errs) > 0 {
		err = fmt.Errorf("please supply values for %v", strings.Join(errs, ", "))
	}
	return
}

// GetStructErrorTxt4UnsetFields will reflect over interface i and append the errorTxt tag of every exported
// field tagged mandatory:"yes" that holds its zero value.
// Nested structs and struct values held in maps are visited too.
// Interface and pointer fields are compared against nil.
func GetStructErrorTxt4UnsetFields(i interface{}, errTags *[]string) {
	val := reflect.ValueOf(i)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return
	}
	typ := val.Type()
	for idx := 0; idx < val.NumField(); idx++ { // for each field in the struct...
		field := typ.Field(idx)
		if field.PkgPath != "" { // if the field is not exported...
			continue
		}
		f := val.Field(idx)
		switch f.Kind() {
		case reflect.Struct: // descend into nested structs.
			GetStructErrorTxt4UnsetFields(f.Interface(), errTags)
		case reflect.Map:
			for _, k := range f.MapKeys() { // for each map value that is a struct...
				if mv := f.MapIndex(k); mv.Kind() == reflect.Struct {
					GetStructErrorTxt4UnsetFields(mv.Interface(), errTags)
				}
			}
		case reflect.Slice:
		default:
			if field.Tag.Get("mandatory") == "yes" && f.IsZero() { // if the field is mandatory and unset...
				*errTags = append(*errTags, field.Tag.Get("errorTxt"))
			}
		}
	}
}
