// Package catalog maps catalog actions onto TMDB endpoints.
//
// An action is either one of the named actions below ("popular-movies",
// "movie-details", ...) or a raw TMDB path such as "movie/popular".
package catalog

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"movicloud/internal/core"
)

// Request is an action resolved to a TMDB endpoint and its query parameters.
type Request struct {
	Endpoint string
	Params   url.Values
}

type action struct {
	// endpoint may contain one %d verb for the id parameter.
	endpoint  string
	idKind    string
	needQuery bool
	paged     bool
	discover  bool
	extras    url.Values
}

var detailExtras = url.Values{"append_to_response": {"credits,videos,images,similar,recommendations"}}
var imageExtras = url.Values{"include_image_language": {"zh,en,null"}}

var actions = map[string]action{
	"popular-movies":        {endpoint: "/movie/popular", paged: true},
	"top-rated-movies":      {endpoint: "/movie/top_rated", paged: true},
	"popular-tv":            {endpoint: "/tv/popular", paged: true},
	"top-rated-tv":          {endpoint: "/tv/top_rated", paged: true},
	"trending":              {endpoint: "/trending/all/day"},
	"movie-details":         {endpoint: "/movie/%d", idKind: "movie", extras: detailExtras},
	"tv-details":            {endpoint: "/tv/%d", idKind: "tv", extras: detailExtras},
	"movie-images":          {endpoint: "/movie/%d/images", idKind: "movie", extras: imageExtras},
	"tv-images":             {endpoint: "/tv/%d/images", idKind: "tv", extras: imageExtras},
	"search":                {endpoint: "/search/multi", needQuery: true},
	"person-details":        {endpoint: "/person/%d", idKind: "person", extras: url.Values{"append_to_response": {"combined_credits"}}},
	"person-movie-credits":  {endpoint: "/person/%d/movie_credits", idKind: "person"},
	"person-tv-credits":     {endpoint: "/person/%d/tv_credits", idKind: "person"},
	"movie-genres":          {endpoint: "/genre/movie/list"},
	"tv-genres":             {endpoint: "/genre/tv/list"},
	"movie-recommendations": {endpoint: "/movie/%d/recommendations", idKind: "movie", paged: true},
	"tv-recommendations":    {endpoint: "/tv/%d/recommendations", idKind: "tv", paged: true},
	"similar-movies":        {endpoint: "/movie/%d/similar", idKind: "movie", paged: true},
	"similar-tv":            {endpoint: "/tv/%d/similar", idKind: "tv", paged: true},
	"discover-movies":       {endpoint: "/discover/movie", paged: true, discover: true},
	"discover-tv":           {endpoint: "/discover/tv", paged: true, discover: true},
}

// discoverFilters maps catalog filter names to TMDB discover parameters.
var discoverFilters = map[string]string{
	"sort":      "sort_by",
	"genres":    "with_genres",
	"languages": "with_original_language",
	"minRating": "vote_average.gte",
}

var pathAction = regexp.MustCompile(`^/?[a-z0-9_]+(/[a-z0-9_.]+)*/?$`)

// Names returns the named actions in sorted order.
func Names() []string {
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsNamed reports whether name is a named action.
func IsNamed(name string) bool {
	_, ok := actions[name]
	return ok
}

// Resolve turns an action and its query into a TMDB request. Named actions
// validate their required parameters; path actions pass the query through.
// The action, api_key and language keys are never forwarded.
func Resolve(name string, query url.Values) (Request, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Request{}, core.NewInvalidRequestError("missing_action_param", nil)
	}

	a, ok := actions[name]
	if !ok {
		if !pathAction.MatchString(name) {
			return Request{}, core.NewInvalidRequestError(fmt.Sprintf("unknown action: %s (named actions: %s)", name, strings.Join(Names(), ", ")), nil)
		}
		return Request{
			Endpoint: "/" + strings.Trim(name, "/"),
			Params:   passthrough(query),
		}, nil
	}

	params := url.Values{}
	endpoint := a.endpoint

	if a.idKind != "" {
		id, err := strconv.Atoi(query.Get("id"))
		if err != nil || id <= 0 {
			return Request{}, core.NewInvalidRequestError(fmt.Sprintf("missing_%s_id", a.idKind), err)
		}
		endpoint = fmt.Sprintf(a.endpoint, id)
	}

	if a.needQuery {
		q := strings.TrimSpace(query.Get("query"))
		if q == "" {
			return Request{}, core.NewInvalidRequestError("missing_search_query", nil)
		}
		params.Set("query", q)
		if p := query.Get("page"); p != "" {
			params.Set("page", strconv.Itoa(Page(p)))
		}
	}

	if a.paged {
		params.Set("page", strconv.Itoa(Page(query.Get("page"))))
	}

	if a.discover {
		for from, to := range discoverFilters {
			if v := query.Get(from); v != "" {
				params.Set(to, v)
			}
		}
	}

	for k, vs := range a.extras {
		params[k] = append([]string(nil), vs...)
	}

	return Request{Endpoint: endpoint, Params: params}, nil
}

// Page parses a page number, falling back to 1.
func Page(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func passthrough(query url.Values) url.Values {
	out := url.Values{}
	for k, vs := range query {
		switch k {
		case "action", "api_key", "language":
			continue
		}
		out[k] = append([]string(nil), vs...)
	}
	return out
}
