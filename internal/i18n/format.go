package i18n

import "strings"

// Format replaces each {name} placeholder in template with options[name]
// in one pass. Unknown placeholders are left in place.
func Format(template string, options map[string]string) string {
	if len(options) == 0 {
		return template
	}
	pairs := make([]string, 0, len(options)*2)
	for name, value := range options {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
