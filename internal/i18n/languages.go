package i18n

import (
	"strings"

	"golang.org/x/text/language"
)

// DefaultLanguage is the language the page is authored in.
const DefaultLanguage = "en"

// Language is one entry of the language selector.
type Language struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

var languages = []Language{
	{Code: "en", Label: "English"},
	{Code: "hi", Label: "Hindi"},
	{Code: "fr", Label: "French"},
	{Code: "es", Label: "Spanish"},
	{Code: "de", Label: "German"},
}

var supportedTags = func() []language.Tag {
	tags := make([]language.Tag, len(languages))
	for i, l := range languages {
		tags[i] = language.MustParse(l.Code)
	}
	return tags
}()

var matcher = language.NewMatcher(supportedTags)

// Languages returns the selectable languages, default first.
func Languages() []Language {
	return append([]Language(nil), languages...)
}

// Normalize maps a code such as "fr", "FR" or "fr-CA" onto a supported code.
// It reports false for anything whose base language is not in the set.
func Normalize(code string) (string, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", false
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", false
	}
	return supported(tag)
}

// FromAcceptLanguage picks the most preferred supported language in an
// Accept-Language header, falling back to DefaultLanguage.
func FromAcceptLanguage(header string) string {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return DefaultLanguage
	}
	for _, tag := range tags {
		if code, ok := supported(tag); ok {
			return code
		}
	}
	return DefaultLanguage
}

// supported matches tag against the set. The matcher alone can map an
// unrelated language onto the default, so the base must also agree.
func supported(tag language.Tag) (string, bool) {
	_, idx, conf := matcher.Match(tag)
	if conf < language.High {
		return "", false
	}
	base, baseConf := tag.Base()
	want, _ := supportedTags[idx].Base()
	if baseConf != language.Exact || base != want {
		return "", false
	}
	return languages[idx].Code, true
}
