package search

import "strings"

// Category is a named group of live-data keywords.
type Category struct {
	Name     string
	Keywords []string
}

// Categories are checked in order; the first match wins.
var Categories = []Category{
	{"weather", []string{"weather", "temperature", "forecast", "rain", "snow", "humidity", "wind", "cloud", "climate"}},
	{"crypto", []string{"bitcoin", "ethereum", "btc", "eth", "crypto", "cryptocurrency", "blockchain", "coin price", "token price", "doge", "ripple", "litecoin", "cardano", "solana", "polygon", "avalanche"}},
	{"stock", []string{"stock", "stock price", "market price", "share price", "trading", "nasdaq", "sp500", "dow jones", "ftse", "nifty", "sensex", "ticker", "share"}},
	{"price", []string{"price", "how much", "cost", "worth", "how much is", "what is the price", "current price", "latest price", "real-time price"}},
	{"news", []string{"news", "today", "breaking", "latest", "headline", "current event", "recent", "happening", "update"}},
	{"sports", []string{"score", "game", "match", "championship", "league", "playoff", "tournament", "winning"}},
	{"realtime", []string{"now", "current", "live", "right now", "this moment", "latest", "recent"}},
}

// MatchCategory returns the first category with a keyword contained in
// query, ignoring case.
func MatchCategory(query string) (string, bool) {
	q := strings.ToLower(query)
	for _, c := range Categories {
		for _, kw := range c.Keywords {
			if strings.Contains(q, kw) {
				return c.Name, true
			}
		}
	}
	return "", false
}

