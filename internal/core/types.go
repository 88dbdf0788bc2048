package core

import "encoding/json"

// Default upstream locations used when settings leave them blank.
const (
	DefaultAPIBaseURL   = "https://api.tmdb.org"
	DefaultImageBaseURL = "https://image.tmdb.org"
)

// TMDBConfig is the upstream configuration record served by the settings source.
// It is treated as immutable once fetched.
type TMDBConfig struct {
	APIKey       string `json:"apiKey"`
	APIBaseURL   string `json:"apiBaseUrl"`
	ImageBaseURL string `json:"imageBaseUrl"`
	ProxyEnabled bool   `json:"proxyEnabled"`
	// ProxyURL is the outbound proxy the server-side gateway dials through.
	ProxyURL string `json:"proxyUrl,omitempty"`
}

// WithDefaults returns a copy with blank base URLs replaced by the TMDB defaults.
func (c TMDBConfig) WithDefaults() TMDBConfig {
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if c.ImageBaseURL == "" {
		c.ImageBaseURL = DefaultImageBaseURL
	}
	return c
}

// RoutingChanged reports whether switching from c to next invalidates
// responses cached under c.
func (c TMDBConfig) RoutingChanged(next TMDBConfig) bool {
	return c.ProxyEnabled != next.ProxyEnabled ||
		c.APIBaseURL != next.APIBaseURL ||
		c.ImageBaseURL != next.ImageBaseURL
}

// Envelope is the {success, data} wrapper used by the settings and gateway endpoints.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// PagedResponse mirrors TMDB's paginated list payload.
type PagedResponse[T any] struct {
	Page         int `json:"page"`
	Results      []T `json:"results"`
	TotalPages   int `json:"total_pages"`
	TotalResults int `json:"total_results"`
}

// Movie is a TMDB movie list item.
type Movie struct {
	ID               int     `json:"id"`
	Title            string  `json:"title"`
	OriginalTitle    string  `json:"original_title,omitempty"`
	Overview         string  `json:"overview"`
	PosterPath       string  `json:"poster_path"`
	BackdropPath     string  `json:"backdrop_path"`
	ReleaseDate      string  `json:"release_date"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	GenreIDs         []int   `json:"genre_ids"`
	OriginalLanguage string  `json:"original_language"`
	Popularity       float64 `json:"popularity"`
	Adult            bool    `json:"adult,omitempty"`
}

// Series is a TMDB TV list item.
type Series struct {
	ID               int      `json:"id"`
	Name             string   `json:"name"`
	OriginalName     string   `json:"original_name,omitempty"`
	Overview         string   `json:"overview"`
	PosterPath       string   `json:"poster_path"`
	BackdropPath     string   `json:"backdrop_path"`
	FirstAirDate     string   `json:"first_air_date"`
	VoteAverage      float64  `json:"vote_average"`
	VoteCount        int      `json:"vote_count"`
	GenreIDs         []int    `json:"genre_ids"`
	OriginalLanguage string   `json:"original_language"`
	Popularity       float64  `json:"popularity"`
	OriginCountry    []string `json:"origin_country,omitempty"`
}

// Genre is a TMDB genre.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// GenreList is the payload of /genre/{movie,tv}/list.
type GenreList struct {
	Genres []Genre `json:"genres"`
}
