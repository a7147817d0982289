package options

import (
	"fmt"
	"harnsnode/pkg/broadcast"
	"harnsnode/pkg/link"
	"harnsnode/pkg/runtime"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Validate reports every problem at once. Logging is applied as a side effect.
func Validate(o *Options) []error {
	var errs []error
	if err := o.BaseOptions.ValidateAndApply(); err != nil {
		errs = append(errs, err)
	}

	if port, err := strconv.Atoi(o.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %q", o.Port))
	}
	if o.Wait.Duration < 0 {
		errs = append(errs, fmt.Errorf("graceful-timeout must not be negative"))
	}
	if (len(o.CertFile) == 0) != (len(o.KeyFile) == 0) {
		errs = append(errs, fmt.Errorf("tls-cert-file and tls-private-key-file must be given together"))
	}

	var allErrs field.ErrorList
	if len(o.Name) == 0 {
		allErrs = append(allErrs, field.Required(field.NewPath("name"), ""))
	} else if strings.ContainsAny(o.Name, `/\`) {
		allErrs = append(allErrs, field.Invalid(field.NewPath("name"), o.Name, "must not contain path separators"))
	}
	allErrs = append(allErrs, validateLinks(o, field.NewPath("links"))...)
	allErrs = append(allErrs, validateMQTT(o, field.NewPath("mqtt"))...)
	allErrs = append(allErrs, runtime.ValidateModuleDescriptors(o.Modules, field.NewPath("modules"))...)
	if agg := allErrs.ToAggregate(); agg != nil {
		errs = append(errs, agg.Errors()...)
	}
	return errs
}

func validateLinks(o *Options, fldPath *field.Path) field.ErrorList {
	var allErrs field.ErrorList
	seen := make(map[string]bool)
	for i, l := range o.Links {
		p := fldPath.Index(i)
		if len(l.URI) == 0 {
			allErrs = append(allErrs, field.Required(p.Child("uri"), ""))
			continue
		}
		if _, err := link.ParseURI(l.URI); err != nil {
			allErrs = append(allErrs, field.Invalid(p.Child("uri"), l.URI, err.Error()))
		}
		if seen[l.URI] {
			allErrs = append(allErrs, field.Duplicate(p.Child("uri"), l.URI))
		}
		seen[l.URI] = true
		if l.MaxRetries < 0 {
			allErrs = append(allErrs, field.Invalid(p.Child("maxRetries"), l.MaxRetries, "must not be negative"))
		}
	}
	for i, m := range o.Modules {
		if len(m.URI) == 0 {
			continue
		}
		if _, err := link.ParseURI(m.URI); err != nil {
			allErrs = append(allErrs, field.Invalid(field.NewPath("modules").Index(i).Child("uri"), m.URI, err.Error()))
		}
	}
	return allErrs
}

func validateMQTT(o *Options, fldPath *field.Path) field.ErrorList {
	var allErrs field.ErrorList
	if o.MQTT == nil {
		return allErrs
	}
	if len(o.MQTT.Broker) == 0 {
		allErrs = append(allErrs, field.Required(fldPath.Child("broker"), ""))
	}
	if _, err := broadcast.NewCodec(o.MQTT.Format); err != nil {
		allErrs = append(allErrs, field.NotSupported(fldPath.Child("format"), o.MQTT.Format, []string{broadcast.FormatJSON, broadcast.FormatCBOR}))
	}
	if o.MQTT.QoS > 2 {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("qos"), o.MQTT.QoS, "must be 0, 1 or 2"))
	}
	return allErrs
}
