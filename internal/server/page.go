package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/jonathan/internship-compass/internal/catalog"
	"github.com/jonathan/internship-compass/internal/dom"
	"github.com/jonathan/internship-compass/internal/i18n"
	"github.com/jonathan/internship-compass/internal/types"
)

//go:embed templates/*.html
var templateFS embed.FS

// skillSummary is the first few required skills plus how many were left out.
type skillSummary struct {
	Skills []string
	More   int
}

// formView is the profile form with submitted values and field errors.
type formView struct {
	Values  types.ProfileForm
	Errors  map[string]string
	Sectors []types.Sector
}

type pageView struct {
	Language  string
	Languages []i18n.Language
	Form      formView
}

type resultsView struct {
	Recommendations []types.Recommendation
}

// Pages renders the document and the fragments mounted into it.
// All rendered text is in the default language; sessions translate it.
type Pages struct {
	tmpl    *template.Template
	catalog *catalog.Catalog
}

// NewPages parses the embedded templates.
func NewPages(cat *catalog.Catalog) (*Pages, error) {
	funcs := template.FuncMap{
		"sectorLabel": cat.SectorLabel,
		"leadingSkills": func(r types.Recommendation, n int) skillSummary {
			skills, more := r.LeadingSkills(n)
			return skillSummary{Skills: skills, More: more}
		},
	}

	tmpl, err := template.New("page.html").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Pages{tmpl: tmpl, catalog: cat}, nil
}

// Document builds a fresh session document. It matches session.DocumentFactory.
func (p *Pages) Document() (*dom.Document, error) {
	var buf bytes.Buffer
	view := pageView{
		Language:  i18n.DefaultLanguage,
		Languages: i18n.Languages(),
		Form:      p.formView(types.ProfileForm{}, nil),
	}
	if err := p.tmpl.ExecuteTemplate(&buf, "page.html", view); err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}
	return dom.Parse(&buf)
}

// Form renders the profile form with values and inline errors.
func (p *Pages) Form(values types.ProfileForm, errs map[string]string) (string, error) {
	return p.render("form", p.formView(values, errs))
}

// Results renders the recommendation cards.
func (p *Pages) Results(recs []types.Recommendation) (string, error) {
	return p.render("results", resultsView{Recommendations: recs})
}

// NoMatches renders the empty-result notice.
func (p *Pages) NoMatches(message string) (string, error) {
	return p.render("no-matches", message)
}

// Error renders an error alert.
func (p *Pages) Error(message string) (string, error) {
	return p.render("error", message)
}

func (p *Pages) formView(values types.ProfileForm, errs map[string]string) formView {
	if errs == nil {
		errs = map[string]string{}
	}
	return formView{Values: values, Errors: errs, Sectors: p.catalog.Sectors()}
}

func (p *Pages) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
