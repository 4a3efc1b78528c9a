package ai

// DefaultModel is used when a request names no model.
const DefaultModel = "gemini-2.5-flash"

// Model describes one entry of the static model catalogue. Prices are USD
// per million tokens and only approximate.
type Model struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	MaxOutputTokens int     `json:"max_output_tokens"`
	InputPrice      float64 `json:"input_price_per_million"`
	OutputPrice     float64 `json:"output_price_per_million"`
}

var catalogue = []Model{
	{
		ID:              "gemini-2.5-flash",
		Name:            "Gemini 2.5 Flash",
		Description:     "Fast, general purpose model",
		MaxOutputTokens: 2048,
		InputPrice:      0.30,
		OutputPrice:     2.50,
	},
	{
		ID:              "gemini-flash-latest",
		Name:            "Gemini Flash (latest)",
		Description:     "Rolling alias for the newest Flash release",
		MaxOutputTokens: 2048,
		InputPrice:      0.30,
		OutputPrice:     2.50,
	},
	{
		ID:              "gemini-2.5-flash-lite",
		Name:            "Gemini 2.5 Flash-Lite",
		Description:     "Lowest latency and cost",
		MaxOutputTokens: 2048,
		InputPrice:      0.10,
		OutputPrice:     0.40,
	},
}

// Models returns a copy of the model catalogue.
func Models() []Model {
	out := make([]Model, len(catalogue))
	copy(out, catalogue)
	return out
}

func LookupModel(id string) (Model, bool) {
	for _, m := range catalogue {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// EstimateCost prices a call from estimated token counts. Unknown models are
// priced as DefaultModel.
func EstimateCost(inputTokens, outputTokens int, model string) float64 {
	m, ok := LookupModel(model)
	if !ok {
		m, _ = LookupModel(DefaultModel)
	}
	return (float64(inputTokens)*m.InputPrice + float64(outputTokens)*m.OutputPrice) / 1_000_000
}
