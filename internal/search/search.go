package search

// Place is a destination suggestion returned by the autocomplete endpoint.
type Place struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Country string  `json:"country"`
	Admin   string  `json:"admin,omitempty"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// Query describes an autocomplete request.
type Query struct {
	Text  string
	Limit int
}

// Response is the envelope returned by the places endpoint.
type Response struct {
	Results []Place `json:"results"`
	Total   int     `json:"total"`
	Query   string  `json:"query"`
}

// Searcher can execute a place lookup.
type Searcher interface {
	Search(q Query) ([]Place, int, error)
	Healthy() bool
}
