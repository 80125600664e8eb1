package httpapi

import (
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/captify/captify/internal/platform/errors"
	"github.com/captify/captify/internal/services/web/session"
	"github.com/captify/captify/internal/services/web/sessioncache"
)

const (
	cacheApplications = "applications"
	cacheUsers        = "users"
	cacheUserState    = "user-state"
)

var errUnknownCacheCollection = errors.New("unknown cache collection")

type itemsBody struct {
	Items []sessioncache.Item `json:"items"`
}

type statsBody struct {
	Ready bool                `json:"ready"`
	Stats *sessioncache.Stats `json:"stats,omitempty"`
}

func (a *API) handleCacheList(w http.ResponseWriter, r *http.Request, sc *session.Context) {
	var items []sessioncache.Item
	switch r.PathValue("collection") {
	case cacheApplications:
		items = sc.Cache.Applications()
	case cacheUsers:
		items = sc.Cache.Users()
	case cacheUserState:
		items = sc.Cache.UserState()
	default:
		a.writeFailure(w, r, errUnknownCacheCollection)
		return
	}
	if items == nil {
		items = []sessioncache.Item{}
	}
	writeJSON(w, http.StatusOK, itemsBody{Items: items})
}

func (a *API) handleCacheGet(w http.ResponseWriter, r *http.Request, sc *session.Context) {
	itemID := r.PathValue("id")
	var (
		item  sessioncache.Item
		found bool
	)
	switch r.PathValue("collection") {
	case cacheApplications:
		item, found = sc.Cache.FindApplication(itemID)
	case cacheUsers:
		item, found = sc.Cache.FindUser(itemID)
	default:
		a.writeFailure(w, r, errUnknownCacheCollection)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, string(apperrors.CodeNotFound), "cache item not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleCachePut upserts one item. The path ID wins over the body ID.
func (a *API) handleCachePut(w http.ResponseWriter, r *http.Request, sc *session.Context) {
	collection := r.PathValue("collection")
	if collection != cacheApplications && collection != cacheUsers {
		a.writeFailure(w, r, errUnknownCacheCollection)
		return
	}
	var item sessioncache.Item
	if err := decodeJSON(w, r, &item); err != nil {
		a.writeFailure(w, r, err)
		return
	}
	item.ID = strings.TrimSpace(r.PathValue("id"))
	if !sc.Cache.IsReady() {
		writeError(w, http.StatusConflict, "CACHE_NOT_READY", "cache is not loaded")
		return
	}

	var err error
	if collection == cacheApplications {
		err = sc.Cache.UpdateApplication(r.Context(), item)
	} else {
		err = sc.Cache.UpdateUser(r.Context(), item)
	}
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleCacheDelete(w http.ResponseWriter, r *http.Request, sc *session.Context) {
	itemID := r.PathValue("id")
	var removed bool
	switch r.PathValue("collection") {
	case cacheApplications:
		removed = sc.Cache.RemoveApplication(r.Context(), itemID)
	case cacheUsers:
		removed = sc.Cache.RemoveUser(r.Context(), itemID)
	default:
		a.writeFailure(w, r, errUnknownCacheCollection)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, string(apperrors.CodeNotFound), "cache item not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCacheRefresh(w http.ResponseWriter, r *http.Request, sc *session.Context) {
	if err := sc.Refresh(r.Context()); err != nil {
		a.writeFailure(w, r, err)
		return
	}
	a.writeStats(w, sc)
}

func (a *API) handleCacheStats(w http.ResponseWriter, r *http.Request, sc *session.Context) {
	a.writeStats(w, sc)
}

func (a *API) writeStats(w http.ResponseWriter, sc *session.Context) {
	stats, ok := sc.Cache.Stats()
	body := statsBody{Ready: ok}
	if ok {
		body.Stats = &stats
	}
	writeJSON(w, http.StatusOK, body)
}
