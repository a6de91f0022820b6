package lims

import (
	"math"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageRequestNormalizes(t *testing.T) {
	cfg := PageConfig{PerPage: 20, MaxPerPage: 100}
	cases := []struct {
		query         string
		page, perPage int
	}{
		{"", 1, 20},
		{"page=3&per_page=5", 3, 5},
		{"page=0", 1, 20},
		{"page=-4", 1, 20},
		{"page=abc&per_page=xyz", 1, 20},
		{"per_page=0", 1, 20},
		{"per_page=101", 1, 100},
		{"per_page=100", 1, 100},
		{"page=9223372036854775807&per_page=2", math.MaxInt / 2, 2},
		{"page=99999999999999999999&per_page=1", math.MaxInt, 1},
		{"page=-99999999999999999999", 1, 20},
	}
	for _, tc := range cases {
		q, _ := url.ParseQuery(tc.query)
		got := cfg.Request(q)
		assert.Equal(t, PageRequest{Page: tc.page, PerPage: tc.perPage}, got, tc.query)
	}
}

func TestBuildMetaEmptyCollection(t *testing.T) {
	u, _ := url.Parse("/api/v1/agencies")
	meta := buildMeta("http://x", u, PageRequest{Page: 1, PerPage: 20}, 0)

	assert.Equal(t, 0, meta.Pages)
	assert.Equal(t, "http://x/api/v1/agencies?page=1&per_page=20", meta.FirstURL)
	assert.Equal(t, meta.FirstURL, meta.LastURL)
	assert.Empty(t, meta.PrevURL)
	assert.Empty(t, meta.NextURL)
}

func TestBuildMetaOverridesPagingParams(t *testing.T) {
	u, _ := url.Parse("/api/v1/samples?page=2&per_page=500&sort=x")
	meta := buildMeta("http://x", u, PageRequest{Page: 2, PerPage: 100}, 250)

	assert.Equal(t, 3, meta.Pages)
	assert.Equal(t, "http://x/api/v1/samples?page=1&per_page=100&sort=x", meta.PrevURL)
	assert.Equal(t, "http://x/api/v1/samples?page=3&per_page=100&sort=x", meta.NextURL)
}
