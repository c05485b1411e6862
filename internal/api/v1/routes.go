// Package v1 exposes the catalog commands as JSON endpoints.
package v1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/catalog-cache/internal/api/common"
	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/service"
)

// maxSettingsBody bounds the size of a settings update body
const maxSettingsBody = 64 << 10

// Routes handles the /api/v1 endpoints
type Routes struct {
	service service.CatalogService
}

// NewRoutes creates the v1 handlers
func NewRoutes(svc service.CatalogService) *Routes {
	return &Routes{service: svc}
}

// Router creates the /api/v1 router
func Router(svc service.CatalogService) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()
	r.Get("/profiles", routes.listProfiles)

	r.Route("/profiles/{profile}", func(r chi.Router) {
		r.Post("/sync", routes.startSync)
		r.Delete("/sync", routes.cancelSync)
		r.Get("/sync", routes.syncProgress)

		r.Get("/settings", routes.getSettings)
		r.Put("/settings", routes.updateSettings)

		r.Route("/{type}", func(r chi.Router) {
			r.Get("/categories", routes.listCategories)
			r.Get("/items", routes.listItems)
			r.Get("/items/{id}", routes.getItem)
			r.Get("/search", routes.search)
			r.Get("/explain", routes.explain)
			r.Get("/index/verify", routes.verifyIndex)
		})
	})

	return r
}

func (rt *Routes) listProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := rt.service.ListProfiles(r.Context())
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	if profiles == nil {
		profiles = []*catalog.Profile{}
	}
	common.WriteData(w, ProfilesResponse{Profiles: profiles}, http.StatusOK)
}

// startSync starts a run and answers before it finishes.
func (rt *Routes) startSync(w http.ResponseWriter, r *http.Request) {
	profileID, err := common.GetAndValidateURLParam(r, "profile")
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	full, err := common.QueryBool(r, "full")
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}

	started, err := rt.service.StartSync(r.Context(), profileID, full)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteData(w, started, http.StatusAccepted)
}

func (rt *Routes) cancelSync(w http.ResponseWriter, r *http.Request) {
	profileID, err := common.GetAndValidateURLParam(r, "profile")
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	if err := rt.service.CancelSync(r.Context(), profileID); err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteData(w, map[string]string{"status": "cancelling"}, http.StatusAccepted)
}

func (rt *Routes) syncProgress(w http.ResponseWriter, r *http.Request) {
	profileID, err := common.GetAndValidateURLParam(r, "profile")
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	progress, err := rt.service.GetSyncProgress(r.Context(), profileID)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteData(w, progress, http.StatusOK)
}

func (rt *Routes) getSettings(w http.ResponseWriter, r *http.Request) {
	profileID, err := common.GetAndValidateURLParam(r, "profile")
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	settings, err := rt.service.GetSyncSettings(r.Context(), profileID)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteData(w, settings, http.StatusOK)
}

func (rt *Routes) updateSettings(w http.ResponseWriter, r *http.Request) {
	profileID, err := common.GetAndValidateURLParam(r, "profile")
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}

	var update service.SettingsUpdate
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&update); err != nil {
		common.WriteServiceError(w, r, fmt.Errorf("%w: body must be a JSON object of known settings", catalog.ErrInvalidSettings))
		return
	}

	settings, err := rt.service.UpdateSyncSettings(r.Context(), profileID, &update)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteData(w, settings, http.StatusOK)
}

func (rt *Routes) listCategories(w http.ResponseWriter, r *http.Request) {
	profileID, contentType, err := profileAndType(r)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	categories, err := rt.service.ListCategories(r.Context(), profileID, contentType)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	ct, _ := catalog.ParseContentType(contentType)
	common.WriteData(w, CategoriesResponse{ContentType: ct, Categories: categories}, http.StatusOK)
}

func (rt *Routes) listItems(w http.ResponseWriter, r *http.Request) {
	opts, err := itemsOptions(r)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	page, err := rt.service.ListItems(r.Context(), opts...)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteData(w, page, http.StatusOK)
}

func (rt *Routes) search(w http.ResponseWriter, r *http.Request) {
	opts, err := itemsOptions(r)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	page, err := rt.service.SearchItems(r.Context(), opts...)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteData(w, page, http.StatusOK)
}

func (rt *Routes) explain(w http.ResponseWriter, r *http.Request) {
	opts, err := itemsOptions(r)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	plan, err := rt.service.ExplainQuery(r.Context(), opts...)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteData(w, plan, http.StatusOK)
}

func (rt *Routes) getItem(w http.ResponseWriter, r *http.Request) {
	profileID, contentType, err := profileAndType(r)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	itemID, err := common.GetAndValidateURLParam(r, "id")
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	detail, err := rt.service.GetItemDetails(r.Context(), profileID, contentType, itemID)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteData(w, detail, http.StatusOK)
}

func (rt *Routes) verifyIndex(w http.ResponseWriter, r *http.Request) {
	profileID, contentType, err := profileAndType(r)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	report, err := rt.service.VerifyIndex(r.Context(), profileID, contentType)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteData(w, report, http.StatusOK)
}

func profileAndType(r *http.Request) (string, string, error) {
	profileID, err := common.GetAndValidateURLParam(r, "profile")
	if err != nil {
		return "", "", err
	}
	contentType, err := common.GetAndValidateURLParam(r, "type")
	if err != nil {
		return "", "", err
	}
	return profileID, contentType, nil
}

// itemsOptions turns the path and query string of an items request into
// service options. Only parameters that are present are passed on.
func itemsOptions(r *http.Request) ([]service.Option, error) {
	profileID, contentType, err := profileAndType(r)
	if err != nil {
		return nil, err
	}
	q := r.URL.Query()

	opts := []service.Option{
		service.WithProfile(profileID),
		service.WithContentType(contentType),
	}
	if text := q.Get("q"); text != "" {
		opts = append(opts, service.WithText(text))
	}
	if category := q.Get("category"); category != "" {
		opts = append(opts, service.WithCategory(category))
	}
	if genre := q.Get("genre"); genre != "" {
		opts = append(opts, service.WithGenre(genre))
	}
	if year, ok, err := common.QueryInt(r, "year"); err != nil {
		return nil, err
	} else if ok {
		opts = append(opts, service.WithYear(year))
	}
	if rating, ok, err := common.QueryFloat(r, "min_rating"); err != nil {
		return nil, err
	} else if ok {
		opts = append(opts, service.WithMinRating(rating))
	}
	if sort := q.Get("sort"); sort != "" {
		desc, err := descending(q.Get("order"))
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithSort(sort, desc))
	}
	if limit, ok, err := common.QueryInt(r, "limit"); err != nil {
		return nil, err
	} else if ok {
		opts = append(opts, service.WithLimit(limit))
	}
	if offset, ok, err := common.QueryInt(r, "offset"); err != nil {
		return nil, err
	} else if ok {
		opts = append(opts, service.WithOffset(offset))
	}
	return opts, nil
}

func descending(order string) (bool, error) {
	switch order {
	case "", "asc":
		return false, nil
	case "desc":
		return true, nil
	}
	return false, fmt.Errorf("%w: order must be asc or desc, got %q", catalog.ErrInvalidQuery, order)
}
