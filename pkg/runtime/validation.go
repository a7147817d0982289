package runtime

import (
	"fmt"
	"net/url"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

type ValidateNameFunc func(name string) error

func ValidateName(name string) error {
	if !IsValidName(name) {
		return fmt.Errorf("must match %s", NameFmt)
	}
	return nil
}

func ValidateObjectMeta(name string, fldPath *field.Path, nameFn ValidateNameFunc) field.ErrorList {
	var allErrs field.ErrorList
	if len(name) == 0 {
		allErrs = append(allErrs, field.Required(fldPath.Child("name"), ""))
	} else if err := nameFn(name); err != nil {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("name"), name, err.Error()))
	}
	return allErrs
}

// ValidateModuleDescriptors checks the shape of every descriptor. Whether
// the class exists and the values fit their datatypes is checked when the
// module is built.
func ValidateModuleDescriptors(descs []ModuleDescriptor, fldPath *field.Path) field.ErrorList {
	var allErrs field.ErrorList
	names := sets.New[string]()
	for i, d := range descs {
		p := fldPath.Index(i)
		allErrs = append(allErrs, ValidateObjectMeta(d.Name, p, ValidateName)...)
		if names.Has(d.Name) {
			allErrs = append(allErrs, field.Duplicate(p.Child("name"), d.Name))
		}
		names.Insert(d.Name)
		if len(d.Class) == 0 {
			allErrs = append(allErrs, field.Required(p.Child("class"), ""))
		}
		if len(d.URI) > 0 {
			if _, err := url.Parse(d.URI); err != nil {
				allErrs = append(allErrs, field.Invalid(p.Child("uri"), d.URI, err.Error()))
			}
		}
		for name := range d.Parameters {
			if !IsValidName(name) {
				allErrs = append(allErrs, field.Invalid(p.Child("parameters").Key(name), name, "invalid parameter name"))
			}
		}
	}
	return allErrs
}
