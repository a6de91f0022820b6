package lims

import (
	"errors"
	"math"
	"net/url"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PageConfig bounds list requests.
type PageConfig struct {
	PerPage    int
	MaxPerPage int
}

func DefaultPageConfig() PageConfig {
	return PageConfig{PerPage: 20, MaxPerPage: 100}
}

// PageRequest is a normalized page selection.
type PageRequest struct {
	Page    int
	PerPage int
}

// Request reads page and per_page. Bad or out-of-range values are corrected,
// never rejected.
func (c PageConfig) Request(q url.Values) PageRequest {
	page, err := strconv.Atoi(q.Get("page"))
	if errors.Is(err, strconv.ErrRange) && page > 0 {
		err = nil
	}
	if err != nil || page < 1 {
		page = 1
	}
	perPage, err := strconv.Atoi(q.Get("per_page"))
	if err != nil || perPage < 1 {
		perPage = c.PerPage
	}
	if c.MaxPerPage > 0 && perPage > c.MaxPerPage {
		perPage = c.MaxPerPage
	}
	if perPage < 1 {
		perPage = 1
	}
	// Keep the offset representable; such a page is past the end anyway.
	if maxPage := math.MaxInt / perPage; page > maxPage {
		page = maxPage
	}
	return PageRequest{Page: page, PerPage: perPage}
}

func (r PageRequest) offset() int {
	return (r.Page - 1) * r.PerPage
}

// PageMeta is the meta block of a list envelope.
type PageMeta struct {
	Page     int    `json:"page"`
	PerPage  int    `json:"per_page"`
	Total    int64  `json:"total"`
	Pages    int    `json:"pages"`
	FirstURL string `json:"first_url"`
	LastURL  string `json:"last_url"`
	PrevURL  string `json:"prev_url,omitempty"`
	NextURL  string `json:"next_url,omitempty"`
}

// Page is one slice of a collection plus its meta block.
type Page struct {
	Items []interface{}
	Meta  PageMeta
}

// paginate counts and fetches one page of q ordered by primary key. q may
// already carry joins, so the id column is qualified with the model table.
func paginate[T any](q *gorm.DB, req PageRequest) ([]T, int64, error) {
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	items := make([]T, 0, req.PerPage)
	if int64(req.offset()) >= total {
		return items, total, nil
	}
	err := q.Session(&gorm.Session{}).
		Order(clause.OrderByColumn{Column: clause.Column{Table: clause.CurrentTable, Name: "id"}}).
		Limit(req.PerPage).
		Offset(req.offset()).
		Find(&items).Error
	return items, total, err
}

// buildMeta derives navigation links from the request URL, keeping every
// other query parameter.
func buildMeta(origin string, u *url.URL, req PageRequest, total int64) PageMeta {
	pages := int((total + int64(req.PerPage) - 1) / int64(req.PerPage))
	last := pages
	if last < 1 {
		last = 1
	}
	link := func(page int) string {
		q := url.Values{}
		if u != nil {
			for k, v := range u.Query() {
				q[k] = v
			}
		}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(req.PerPage))
		path := ""
		if u != nil {
			path = u.Path
		}
		return origin + path + "?" + q.Encode()
	}

	meta := PageMeta{
		Page:     req.Page,
		PerPage:  req.PerPage,
		Total:    total,
		Pages:    pages,
		FirstURL: link(1),
		LastURL:  link(last),
	}
	if req.Page > 1 && req.Page-1 <= pages {
		meta.PrevURL = link(req.Page - 1)
	}
	if req.Page < pages {
		meta.NextURL = link(req.Page + 1)
	}
	return meta
}
