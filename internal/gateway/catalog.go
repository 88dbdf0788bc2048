package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"movicloud/internal/catalog"
	"movicloud/internal/core"
)

// DiscoverFilter narrows a discover listing.
type DiscoverFilter struct {
	Sort      string
	Genres    string
	Languages string
	MinRating float64
	Page      int
}

func (f DiscoverFilter) query() url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(max(f.Page, 1)))
	if f.Sort != "" {
		q.Set("sort", f.Sort)
	}
	if f.Genres != "" {
		q.Set("genres", f.Genres)
	}
	if f.Languages != "" {
		q.Set("languages", f.Languages)
	}
	if f.MinRating > 0 {
		q.Set("minRating", strconv.FormatFloat(f.MinRating, 'f', -1, 64))
	}
	return q
}

// Action resolves a catalog action (named or path) and fetches it.
func (c *Client) Action(ctx context.Context, name string, query url.Values) (json.RawMessage, error) {
	req, err := catalog.Resolve(name, query)
	if err != nil {
		return nil, err
	}
	return c.Fetch(ctx, req.Endpoint, req.Params)
}

func (c *Client) PopularMovies(ctx context.Context, page int) (*core.PagedResponse[core.Movie], error) {
	return actionInto[core.PagedResponse[core.Movie]](ctx, c, "popular-movies", pageQuery(page))
}

func (c *Client) TopRatedMovies(ctx context.Context, page int) (*core.PagedResponse[core.Movie], error) {
	return actionInto[core.PagedResponse[core.Movie]](ctx, c, "top-rated-movies", pageQuery(page))
}

func (c *Client) PopularTV(ctx context.Context, page int) (*core.PagedResponse[core.Series], error) {
	return actionInto[core.PagedResponse[core.Series]](ctx, c, "popular-tv", pageQuery(page))
}

func (c *Client) TopRatedTV(ctx context.Context, page int) (*core.PagedResponse[core.Series], error) {
	return actionInto[core.PagedResponse[core.Series]](ctx, c, "top-rated-tv", pageQuery(page))
}

// TrendingToday returns today's trending titles of all media types.
func (c *Client) TrendingToday(ctx context.Context) (json.RawMessage, error) {
	return c.Action(ctx, "trending", nil)
}

// MovieDetails includes credits, videos, images, similar titles and recommendations.
func (c *Client) MovieDetails(ctx context.Context, id int) (json.RawMessage, error) {
	return c.Action(ctx, "movie-details", idQuery(id))
}

// TVDetails includes credits, videos, images, similar titles and recommendations.
func (c *Client) TVDetails(ctx context.Context, id int) (json.RawMessage, error) {
	return c.Action(ctx, "tv-details", idQuery(id))
}

func (c *Client) MovieImages(ctx context.Context, id int) (json.RawMessage, error) {
	return c.Action(ctx, "movie-images", idQuery(id))
}

func (c *Client) TVImages(ctx context.Context, id int) (json.RawMessage, error) {
	return c.Action(ctx, "tv-images", idQuery(id))
}

// SearchMulti searches movies, TV shows and people at once.
func (c *Client) SearchMulti(ctx context.Context, query string, page int) (json.RawMessage, error) {
	q := url.Values{"query": {query}}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	return c.Action(ctx, "search", q)
}

func (c *Client) PersonDetails(ctx context.Context, id int) (json.RawMessage, error) {
	return c.Action(ctx, "person-details", idQuery(id))
}

func (c *Client) PersonMovieCredits(ctx context.Context, id int) (json.RawMessage, error) {
	return c.Action(ctx, "person-movie-credits", idQuery(id))
}

func (c *Client) PersonTVCredits(ctx context.Context, id int) (json.RawMessage, error) {
	return c.Action(ctx, "person-tv-credits", idQuery(id))
}

func (c *Client) MovieGenres(ctx context.Context) (*core.GenreList, error) {
	return actionInto[core.GenreList](ctx, c, "movie-genres", nil)
}

func (c *Client) TVGenres(ctx context.Context) (*core.GenreList, error) {
	return actionInto[core.GenreList](ctx, c, "tv-genres", nil)
}

func (c *Client) MovieRecommendations(ctx context.Context, id, page int) (*core.PagedResponse[core.Movie], error) {
	return actionInto[core.PagedResponse[core.Movie]](ctx, c, "movie-recommendations", idPageQuery(id, page))
}

func (c *Client) TVRecommendations(ctx context.Context, id, page int) (*core.PagedResponse[core.Series], error) {
	return actionInto[core.PagedResponse[core.Series]](ctx, c, "tv-recommendations", idPageQuery(id, page))
}

func (c *Client) SimilarMovies(ctx context.Context, id, page int) (*core.PagedResponse[core.Movie], error) {
	return actionInto[core.PagedResponse[core.Movie]](ctx, c, "similar-movies", idPageQuery(id, page))
}

func (c *Client) SimilarTV(ctx context.Context, id, page int) (*core.PagedResponse[core.Series], error) {
	return actionInto[core.PagedResponse[core.Series]](ctx, c, "similar-tv", idPageQuery(id, page))
}

func (c *Client) DiscoverMovies(ctx context.Context, filter DiscoverFilter) (*core.PagedResponse[core.Movie], error) {
	return actionInto[core.PagedResponse[core.Movie]](ctx, c, "discover-movies", filter.query())
}

func (c *Client) DiscoverTV(ctx context.Context, filter DiscoverFilter) (*core.PagedResponse[core.Series], error) {
	return actionInto[core.PagedResponse[core.Series]](ctx, c, "discover-tv", filter.query())
}

func actionInto[T any](ctx context.Context, c *Client, name string, query url.Values) (*T, error) {
	body, err := c.Action(ctx, name, query)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, core.NewUpstreamError(0, fmt.Sprintf("decode %s response", name), err)
	}
	return &out, nil
}

func pageQuery(page int) url.Values {
	return url.Values{"page": {strconv.Itoa(max(page, 1))}}
}

func idQuery(id int) url.Values {
	return url.Values{"id": {strconv.Itoa(id)}}
}

func idPageQuery(id, page int) url.Values {
	q := pageQuery(page)
	q.Set("id", strconv.Itoa(id))
	return q
}
