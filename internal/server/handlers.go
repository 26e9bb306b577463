package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/jonathan/internship-compass/internal/dom"
	"github.com/jonathan/internship-compass/internal/i18n"
	"github.com/jonathan/internship-compass/internal/recommend"
	"github.com/jonathan/internship-compass/internal/server/middleware"
	"github.com/jonathan/internship-compass/internal/session"
	"github.com/jonathan/internship-compass/internal/types"
)

const (
	maxBodyBytes      = 1 << 20
	maxTranslateTexts = 500

	// MessageTranslationFailed is returned when a language switch fell back to the default.
	MessageTranslationFailed = "Translation is unavailable right now. Showing the page in English."

	// MessageResultCount summarises a successful ranking; {count} is the number shown.
	MessageResultCount = "Showing {count} best matches"
)

// RecommendationsResponse is the JSON body of POST /recommendations.
type RecommendationsResponse struct {
	Recommendations []types.Recommendation `json:"recommendations"`
	Message         string                 `json:"message,omitempty"`
}

// ValidationResponse is returned for an invalid profile.
type ValidationResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// LanguageRequest is the JSON body of POST /language.
type LanguageRequest struct {
	Language string `json:"language"`
}

// LanguageResponse reports the language in effect after a switch.
type LanguageResponse struct {
	Language string `json:"language"`
	// Fallback is set when the switch failed and the page reverted to the default.
	Fallback bool   `json:"fallback,omitempty"`
	Message  string `json:"message,omitempty"`
}

// TranslateRequest is the body of POST /api/translate.
type TranslateRequest struct {
	Texts          []string `json:"texts"`
	TargetLanguage string   `json:"targetLanguage"`
}

// TranslateResponse has one translation per input text, in order.
type TranslateResponse struct {
	Translations []string `json:"translations"`
}

// handleIndex renders the visitor's live document.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.GetSession(r)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	if middleware.IsNewSession(r) {
		lang := s.cookies.Read(r)
		if lang == "" {
			lang = s.initialLanguage
		}
		if lang != i18n.DefaultLanguage {
			if err := s.switchLanguage(r.Context(), sess, lang); err != nil {
				log.Printf("[server] restoring language %s: %v", lang, err)
			}
		}
	}

	etag := fmt.Sprintf(`"%s-%d"`, sess.ID, sess.Revision())
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Language", sess.Language())
	if err := sess.Render(w); err != nil {
		log.Printf("[server] failed to render session %s: %v", sess.ID, err)
	}
}

// handleRecommendations validates the profile form, ranks the catalog, and
// mounts the results into the session document.
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.GetSession(r)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	ctx := r.Context()
	asJSON := wantsJSON(r)

	var form types.ProfileForm
	if err := decodeProfileForm(w, r, &form); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	if err := s.validator.Validate(&form); err != nil {
		var verr *types.ValidationError
		if !errors.As(err, &verr) {
			s.errorResponse(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.mount(ctx, sess, "#profile", func() (string, error) { return s.pages.Form(form, verr.Fields) })
		if asJSON {
			fields := make(map[string]string, len(verr.Fields))
			for name, msg := range verr.Fields {
				fields[name] = sess.T("form."+name, msg)
			}
			s.jsonResponse(w, HTTPStatus(err), ValidationResponse{Error: "validation failed", Fields: fields})
			return
		}
		http.Redirect(w, r, "/#profile", http.StatusSeeOther)
		return
	}

	s.mount(ctx, sess, "#profile", func() (string, error) { return s.pages.Form(form, nil) })

	recs, err := s.assembler.Recommend(ctx, form.Profile())
	s.mount(ctx, sess, "#results", func() (string, error) {
		switch {
		case err == nil:
			return s.pages.Results(recs)
		case errors.Is(err, recommend.ErrNoMatches):
			return s.pages.NoMatches(recommend.UserMessage(err))
		default:
			return s.pages.Error(recommend.UserMessage(err))
		}
	})

	if asJSON {
		resp := RecommendationsResponse{Recommendations: recs}
		if resp.Recommendations == nil {
			resp.Recommendations = []types.Recommendation{}
		}
		if err != nil {
			resp.Message = sess.T(messageKey(err), recommend.UserMessage(err))
		} else {
			resp.Message = i18n.Format(sess.T("recommend.count", MessageResultCount),
				map[string]string{"count": strconv.Itoa(len(recs))})
		}
		s.jsonResponse(w, HTTPStatus(err), resp)
		return
	}
	http.Redirect(w, r, "/#results", http.StatusSeeOther)
}

// handleLanguage switches the session language and remembers it in the language cookie.
func (s *Server) handleLanguage(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.GetSession(r)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	var req LanguageRequest
	if wantsJSONBody(r) {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("%v: %v", ErrBadRequest, err))
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("%v: %v", ErrBadRequest, err))
			return
		}
		req.Language = r.PostForm.Get("language")
	}

	err = s.switchLanguage(r.Context(), sess, req.Language)
	var failure *session.TranslationFailure
	if err != nil && !errors.As(err, &failure) {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	current := sess.Language()
	if err := s.cookies.Write(w, current); err != nil {
		log.Printf("[server] %v", err)
	}

	if wantsJSON(r) {
		resp := LanguageResponse{Language: current}
		if failure != nil {
			resp.Fallback = true
			resp.Message = MessageTranslationFailed
		}
		s.jsonResponse(w, http.StatusOK, resp)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleTranslate exposes the batch translation contract.
func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req TranslateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Texts) > maxTranslateTexts {
		s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("at most %d texts per request", maxTranslateTexts))
		return
	}
	code, ok := i18n.Normalize(req.TargetLanguage)
	if !ok {
		s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("%v: %q", session.ErrUnsupportedLanguage, req.TargetLanguage))
		return
	}

	translations, err := s.translator.TranslateBatch(r.Context(), req.Texts, code)
	if err != nil {
		log.Printf("[server] translate %d texts to %s: %v", len(req.Texts), code, err)
		s.errorResponse(w, http.StatusBadGateway, "translation failed")
		return
	}
	if translations == nil {
		translations = []string{}
	}
	s.jsonResponse(w, http.StatusOK, TranslateResponse{Translations: translations})
}

// handleLanguages lists the selectable languages.
func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"languages": i18n.Languages(),
		"default":   i18n.DefaultLanguage,
		"suggested": i18n.FromAcceptLanguage(r.Header.Get("Accept-Language")),
	}
	if sess, err := middleware.GetSession(r); err == nil {
		resp["current"] = sess.Language()
		resp["translating"] = sess.IsTranslating()
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleSectors lists the sectors offered by the profile form.
func (s *Server) handleSectors(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{"sectors": s.catalog.Sectors()})
}

// switchLanguage changes the session language and keeps the selector in sync.
// A *session.TranslationFailure is returned after the page has reverted to the default.
func (s *Server) switchLanguage(ctx context.Context, sess *session.Session, code string) error {
	err := sess.ChangeLanguage(ctx, code)
	if errors.Is(err, session.ErrUnsupportedLanguage) {
		return fmt.Errorf("%w: %q", err, code)
	}

	current := sess.Language()
	syncErr := sess.Do(ctx, func(d *dom.Document) {
		for _, opt := range d.Find("#language option") {
			if dom.Attr(opt, "value") == current {
				d.SetAttr(opt, "selected", "selected")
			} else {
				d.RemoveAttr(opt, "selected")
			}
		}
	})
	if syncErr != nil {
		log.Printf("[server] sync language selector for session %s: %v", sess.ID, syncErr)
	}
	return err
}

// mount renders a fragment and mounts it, logging failures. The page keeps
// its previous content when rendering fails.
func (s *Server) mount(ctx context.Context, sess *session.Session, selector string, render func() (string, error)) {
	fragment, err := render()
	if err != nil {
		log.Printf("[server] %v", err)
		return
	}
	if err := sess.Mount(ctx, selector, fragment); err != nil {
		log.Printf("[server] mount %s for session %s: %v", selector, sess.ID, err)
	}
}

func decodeProfileForm(w http.ResponseWriter, r *http.Request, form *types.ProfileForm) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if wantsJSONBody(r) {
		if err := json.NewDecoder(r.Body).Decode(form); err != nil {
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return nil
	}

	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	form.Education = r.PostForm.Get("education")
	form.Skills = r.PostForm.Get("skills")
	form.SectorInterest = r.PostForm.Get("sectorInterest")
	form.Location = r.PostForm.Get("location")
	return nil
}

func messageKey(err error) string {
	if errors.Is(err, recommend.ErrNoMatches) {
		return "recommend.noMatches"
	}
	return "recommend.failed"
}

func wantsJSONBody(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// wantsJSON reports whether the client sent or asked for JSON.
func wantsJSON(r *http.Request) bool {
	return wantsJSONBody(r) || strings.Contains(r.Header.Get("Accept"), "application/json")
}
