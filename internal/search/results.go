package search

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const maxItems = 5

type Kind string

const (
	KindGoogle   Kind = "google"
	KindNews     Kind = "news"
	KindShopping Kind = "shopping"
)

// engine maps a kind onto the provider's engine parameter.
func (k Kind) engine() string {
	switch k {
	case KindNews:
		return "google_news"
	case KindShopping:
		return "google_shopping"
	default:
		return "google"
	}
}

// Results is the formatted top of a search response.
type Results struct {
	Type         string `json:"type"`
	Query        string `json:"query"`
	TotalResults int64  `json:"total_results,omitempty"`
	Items        []Item `json:"items"`
}

type Item struct {
	Title    string `json:"title,omitempty"`
	URL      string `json:"url,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
	Source   string `json:"source,omitempty"`
	Date     string `json:"date,omitempty"`
	Price    string `json:"price,omitempty"`
	Currency string `json:"currency,omitempty"`
	Image    string `json:"image,omitempty"`
}

// text decodes a JSON string, number, or an object with a name field.
// Providers are loose about fields like source and price.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = text(s)
	case b[0] == '{':
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*t = text(obj.Name)
	default:
		*t = text(b)
	}
	return nil
}

type rawItem struct {
	Title     text `json:"title"`
	Link      text `json:"link"`
	Snippet   text `json:"snippet"`
	Source    text `json:"source"`
	Date      text `json:"date"`
	Price     text `json:"price"`
	Currency  text `json:"currency"`
	Thumbnail text `json:"thumbnail"`
	Image     text `json:"image"`
}

type rawResponse struct {
	SearchParameters struct {
		Q string `json:"q"`
	} `json:"search_parameters"`
	SearchInformation struct {
		TotalResults int64 `json:"total_results"`
	} `json:"search_information"`
	OrganicResults  []rawItem `json:"organic_results"`
	NewsResults     []rawItem `json:"news_results"`
	ShoppingResults []rawItem `json:"shopping_results"`
	Error           string    `json:"error"`
}

// parseResults formats a raw provider payload for kind.
func parseResults(payload []byte, kind Kind) (*Results, error) {
	var raw rawResponse
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	if raw.Error != "" {
		return nil, fmt.Errorf("search provider error: %s", raw.Error)
	}

	res := &Results{Query: raw.SearchParameters.Q, Items: []Item{}}
	switch kind {
	case KindNews:
		res.Type = "news"
		for _, it := range top(raw.NewsResults) {
			res.Items = append(res.Items, Item{
				Title:   string(it.Title),
				URL:     string(it.Link),
				Source:  string(it.Source),
				Date:    string(it.Date),
				Snippet: string(it.Snippet),
			})
		}
	case KindShopping:
		res.Type = "shopping"
		for _, it := range top(raw.ShoppingResults) {
			image := it.Image
			if image == "" {
				image = it.Thumbnail
			}
			res.Items = append(res.Items, Item{
				Title:    string(it.Title),
				Price:    string(it.Price),
				Currency: string(it.Currency),
				Source:   string(it.Source),
				Image:    string(image),
				URL:      string(it.Link),
			})
		}
	default:
		res.Type = "google_search"
		res.TotalResults = raw.SearchInformation.TotalResults
		for _, it := range top(raw.OrganicResults) {
			res.Items = append(res.Items, Item{
				Title:   string(it.Title),
				URL:     string(it.Link),
				Snippet: string(it.Snippet),
				Source:  string(it.Source),
			})
		}
	}
	return res, nil
}

func top(items []rawItem) []rawItem {
	if len(items) > maxItems {
		return items[:maxItems]
	}
	return items
}

// FormatForPrompt renders results as a text block for the model prompt.
func FormatForPrompt(r *Results) string {
	if r == nil {
		return "No search results found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n**Search Results for:** %s\n", r.Query)
	fmt.Fprintf(&b, "**Type:** %s\n\n", r.Type)

	for i, it := range r.Items {
		n := i + 1
		switch r.Type {
		case "news":
			fmt.Fprintf(&b, "%d. **%s** - %s\n", n, it.Title, it.Source)
			fmt.Fprintf(&b, "   Date: %s\n", it.Date)
			fmt.Fprintf(&b, "   %s\n\n", it.Snippet)
		case "shopping":
			fmt.Fprintf(&b, "%d. **%s**\n", n, it.Title)
			fmt.Fprintf(&b, "   Price: %s\n", strings.TrimSpace(it.Currency+" "+it.Price))
			fmt.Fprintf(&b, "   Source: %s\n\n", it.Source)
		default:
			fmt.Fprintf(&b, "%d. **%s**\n", n, it.Title)
			fmt.Fprintf(&b, "   %s\n", it.Snippet)
			fmt.Fprintf(&b, "   [Link](%s)\n\n", it.URL)
		}
	}
	return b.String()
}
