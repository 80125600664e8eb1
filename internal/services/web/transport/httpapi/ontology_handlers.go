package httpapi

import (
	"errors"
	"net/http"

	"github.com/captify/captify/internal/services/web/ontology"
	"github.com/captify/captify/internal/services/web/session"
)

type entitiesBody struct {
	Items []ontology.Entity `json:"items"`
}

type loadRequest struct {
	Collections []string `json:"collections"`
}

func (a *API) handleOntologyList(w http.ResponseWriter, r *http.Request, sc *session.Context) {
	c, err := ontology.ParseCollection(r.PathValue("collection"))
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	items := sc.Store.Entities(c)
	if items == nil {
		items = []ontology.Entity{}
	}
	writeJSON(w, http.StatusOK, entitiesBody{Items: items})
}

func (a *API) handleOntologyCreate(w http.ResponseWriter, r *http.Request, sc *session.Context) {
	c, err := ontology.ParseCollection(r.PathValue("collection"))
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	var data map[string]any
	if err := decodeJSON(w, r, &data); err != nil {
		a.writeFailure(w, r, err)
		return
	}
	entity, err := sc.Store.Create(r.Context(), c, data)
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entity)
}

// handleOntologyUpdate applies the merge and answers with the entity as the
// store now holds it.
func (a *API) handleOntologyUpdate(w http.ResponseWriter, r *http.Request, sc *session.Context) {
	c, err := ontology.ParseCollection(r.PathValue("collection"))
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	slug := r.PathValue("slug")
	var updates map[string]any
	if err := decodeJSON(w, r, &updates); err != nil {
		a.writeFailure(w, r, err)
		return
	}
	if err := sc.Store.Update(r.Context(), c, slug, updates); err != nil {
		a.writeFailure(w, r, err)
		return
	}
	entity, ok := sc.Store.Find(c, slug)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (a *API) handleOntologyDelete(w http.ResponseWriter, r *http.Request, sc *session.Context) {
	c, err := ontology.ParseCollection(r.PathValue("collection"))
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	if err := sc.Store.Delete(r.Context(), c, r.PathValue("slug")); err != nil {
		a.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleOntologyLoad loads the named collections, or all of them when the
// body is empty. Load failures are reported through the status error.
func (a *API) handleOntologyLoad(w http.ResponseWriter, r *http.Request, sc *session.Context) {
	var req loadRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		a.writeFailure(w, r, err)
		return
	}
	if len(req.Collections) == 0 {
		sc.Store.LoadAll(r.Context())
		writeJSON(w, http.StatusOK, sc.Store.Status())
		return
	}

	collections := make([]ontology.Collection, 0, len(req.Collections))
	for _, raw := range req.Collections {
		c, err := ontology.ParseCollection(raw)
		if err != nil {
			a.writeFailure(w, r, err)
			return
		}
		collections = append(collections, c)
	}
	for _, c := range collections {
		sc.Store.Load(r.Context(), c)
	}
	writeJSON(w, http.StatusOK, sc.Store.Status())
}

func (a *API) handleOntologyStatus(w http.ResponseWriter, r *http.Request, sc *session.Context) {
	writeJSON(w, http.StatusOK, sc.Store.Status())
}
