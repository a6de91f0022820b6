package lims

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/labtrack/lims/pkg/common/logger"
	"gorm.io/gorm"
)

type Handler struct {
	service       *Service
	publicBaseURL string
	trustProxy    bool
}

type HandlerOption func(*Handler)

// WithTrustedProxy honors X-Forwarded-Proto when building links. Only set it
// when a proxy in front of the service overwrites that header.
func WithTrustedProxy() HandlerOption {
	return func(h *Handler) { h.trustProxy = true }
}

// NewHandler serves the API. When publicBaseURL is empty, links are built
// from the request scheme and host, and single views bypass the cache.
func NewHandler(service *Service, publicBaseURL string, opts ...HandlerOption) *Handler {
	h := &Handler{service: service, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// parent describes the owner segment of a nested collection route.
type parent struct {
	name  string
	table string
	// column is the child's foreign key, also the payload key injected on
	// scoped creates. Empty for many-to-many parents.
	column string
	// through filters a many-to-many list via the join table.
	through func(q *gorm.DB, id uint) *gorm.DB
	// link tags the created child with the parent inside the create
	// transaction.
	link func(tx *gorm.DB, parentID, childID uint) error
}

// Register mounts every route on r, which is expected to be rooted at
// APIPrefix.
func (h *Handler) Register(r *mux.Router) {
	registerResource(h, r, Agencies)
	registerResource(h, r, Contacts)
	registerResource(h, r, Batches)
	registerResource(h, r, Samples)
	registerResource(h, r, Clients)
	registerResource(h, r, Results)
	registerResource(h, r, Infos)
	registerResource(h, r, Categories)
	registerResource(h, r, Refs)
	registerResource(h, r, Projects)
	registerResource(h, r, Roadmaps)
	registerResource(h, r, Positions)
	registerResource(h, r, Libraries)

	agency := parent{name: "agency", table: "agencies", column: "agency_id"}
	registerNested(h, r, "agencies", "batches", Batches, agency, true)
	registerNested(h, r, "agencies", "contacts", Contacts, agency, true)
	registerNested(h, r, "contacts", "batches", Batches, parent{name: "contact", table: "contacts", column: "contact_id"}, false)
	registerNested(h, r, "batches", "samples", Samples, parent{name: "batch", table: "batches", column: "batch_id"}, true)
	registerNested(h, r, "samples", "results", Results, parent{name: "sample", table: "samples", column: "sample_id"}, true)
	registerNested(h, r, "clients", "samples", Samples, parent{name: "client", table: "clients", column: "client_id"}, false)
	registerNested(h, r, "infos", "refs", Refs, parent{name: "info", table: "infos", column: "info_id"}, true)
	registerNested(h, r, "projects", "batches", Batches, parent{name: "project", table: "projects", column: "project_id"}, false)
	registerNested(h, r, "roadmaps", "batches", Batches, parent{name: "roadmap", table: "roadmaps", column: "roadmap_id"}, false)
	registerNested(h, r, "positions", "batches", Batches, parent{name: "position", table: "positions", column: "position_id"}, false)
	registerNested(h, r, "libraries", "samples", Samples, parent{name: "library", table: "libraries", column: "library_id"}, false)

	registerNested(h, r, "infos", "categories", Categories, parent{
		name:  "info",
		table: "infos",
		through: func(q *gorm.DB, id uint) *gorm.DB {
			return q.Joins("JOIN category_infos ON category_infos.category_id = categories.id").
				Where("category_infos.info_id = ?", id)
		},
		link: func(tx *gorm.DB, infoID, categoryID uint) error {
			return linkCategoryInfo(tx, categoryID, infoID)
		},
	}, true)
	registerNested(h, r, "categories", "infos", Infos, parent{
		name:  "category",
		table: "categories",
		through: func(q *gorm.DB, id uint) *gorm.DB {
			return q.Joins("JOIN category_infos ON category_infos.info_id = infos.id").
				Where("category_infos.category_id = ?", id)
		},
		link: linkCategoryInfo,
	}, true)

	link := "/categories/{id:[0-9]+}/infos/{info_id:[0-9]+}"
	r.HandleFunc(link, h.handleLinkCategoryInfo).Methods(http.MethodPut)
	r.HandleFunc(link, h.handleUnlinkCategoryInfo).Methods(http.MethodDelete)
}

func registerResource[T Entity](h *Handler, r *mux.Router, res *Resource[T]) {
	base := "/" + res.Collection
	for _, path := range []string{base, base + "/"} {
		r.HandleFunc(path, listHandler(h, res, nil)).Methods(http.MethodGet)
		r.HandleFunc(path, createHandler(h, res, nil)).Methods(http.MethodPost)
	}
	item := base + "/{id:[0-9]+}"
	r.HandleFunc(item, getHandler(h, res)).Methods(http.MethodGet)
	r.HandleFunc(item, updateHandler(h, res)).Methods(http.MethodPut)
	r.HandleFunc(item, deleteHandler(h, res)).Methods(http.MethodDelete)
}

func registerNested[T Entity](h *Handler, r *mux.Router, owner, sub string, res *Resource[T], p parent, creatable bool) {
	base := "/" + owner + "/{id:[0-9]+}/" + sub
	for _, path := range []string{base, base + "/"} {
		r.HandleFunc(path, listHandler(h, res, &p)).Methods(http.MethodGet)
		if creatable {
			r.HandleFunc(path, createHandler(h, res, &p)).Methods(http.MethodPost)
		}
	}
}

func listHandler[T Entity](h *Handler, res *Resource[T], p *parent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var scope Scope
		if p != nil {
			id, ok := h.requireParent(w, r, p)
			if !ok {
				return
			}
			scope = func(q *gorm.DB) *gorm.DB {
				if p.through != nil {
					return p.through(q, id)
				}
				return q.Where(p.column+" = ?", id)
			}
		}

		req := h.service.Paging().Request(r.URL.Query())
		page, err := List(r.Context(), h.service, res, h.links(r), scope, req, r.URL)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			res.Collection: page.Items,
			"meta":         page.Meta,
		})
	}
}

func createHandler[T Entity](h *Handler, res *Resource[T], p *parent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			parentID uint
			after    func(tx *gorm.DB, e *T) error
		)
		if p != nil {
			id, ok := h.requireParent(w, r, p)
			if !ok {
				return
			}
			parentID = id
		}

		payload, err := DecodePayload(r.Body, res.Name)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if p != nil {
			if p.column != "" {
				payload.SetID(p.column, parentID)
			}
			if p.link != nil {
				after = func(tx *gorm.DB, e *T) error {
					return p.link(tx, parentID, (*e).PrimaryKey())
				}
			}
		}

		e, err := Create(r.Context(), h.service, res, payload, after)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		w.Header().Set("Location", h.links(r).Resource(res.Collection, (*e).PrimaryKey()))
		w.WriteHeader(http.StatusCreated)
	}
}

func getHandler[T Entity](h *Handler, res *Resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.pathID(w, r, "id", res.Name)
		if !ok {
			return
		}
		render := View[T]
		if h.publicBaseURL == "" {
			render = Render[T]
		}
		view, err := render(r.Context(), h.service, res, h.links(r), id)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func updateHandler[T Entity](h *Handler, res *Resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.pathID(w, r, "id", res.Name)
		if !ok {
			return
		}
		payload, err := DecodePayload(r.Body, res.Name)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if err := Update(r.Context(), h.service, res, id, payload); err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}
}

func deleteHandler[T Entity](h *Handler, res *Resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.pathID(w, r, "id", res.Name)
		if !ok {
			return
		}
		if err := Delete(r.Context(), h.service, res, id); err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}
}

func (h *Handler) handleLinkCategoryInfo(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := h.pathID(w, r, "id", "category")
	if !ok {
		return
	}
	infoID, ok := h.pathID(w, r, "info_id", "info")
	if !ok {
		return
	}
	if err := h.service.LinkCategoryInfo(r.Context(), categoryID, infoID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) handleUnlinkCategoryInfo(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := h.pathID(w, r, "id", "category")
	if !ok {
		return
	}
	infoID, ok := h.pathID(w, r, "info_id", "info")
	if !ok {
		return
	}
	if err := h.service.UnlinkCategoryInfo(r.Context(), categoryID, infoID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReady reports whether the store answers.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		logger.FromContext(r.Context()).WithError(err).Warn("store not ready")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) requireParent(w http.ResponseWriter, r *http.Request, p *parent) (uint, bool) {
	id, ok := h.pathID(w, r, "id", p.name)
	if !ok {
		return 0, false
	}
	exists, err := h.service.Exists(r.Context(), p.table, id)
	if err != nil {
		h.writeError(w, r, err)
		return 0, false
	}
	if !exists {
		h.writeError(w, r, notFound(p.name, id))
		return 0, false
	}
	return id, true
}

// pathID parses a route variable. The route pattern already restricts it to
// digits, so only zero and overflow remain.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, key, resource string) (uint, bool) {
	raw := mux.Vars(r)[key]
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 || uint64(uint(v)) != v {
		h.writeError(w, r, fmt.Errorf("%s %s %w", resource, raw, ErrNotFound))
		return 0, false
	}
	return uint(v), true
}

func (h *Handler) links(r *http.Request) Links {
	if h.publicBaseURL != "" {
		return Links{Origin: h.publicBaseURL}
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); h.trustProxy && proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	return Links{Origin: scheme + "://" + r.Host}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal error"
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		message = ve.Error()
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, ErrConflict):
		status = http.StatusConflict
		message = "resource is still referenced"
	case errors.Is(err, ErrTooLarge):
		status = http.StatusRequestEntityTooLarge
		message = err.Error()
	default:
		logger.FromContext(r.Context()).WithError(err).
			WithFields(map[string]interface{}{"method": r.Method, "path": r.URL.Path}).
			Error("request failed")
	}
	writeJSON(w, status, errorBody{Error: http.StatusText(status), Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
