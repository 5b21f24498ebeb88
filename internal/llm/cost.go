package llm

import "strings"

// price is USD per million tokens.
type price struct {
	in, out float64
}

var prices = map[string]price{
	"gemini-2.5-flash":  {0.30, 2.50},
	"gemini-2.0-flash":  {0.10, 0.40},
	"gpt-4o-mini":       {0.15, 0.60},
	"gpt-4o":            {2.50, 10.00},
	"claude-haiku-4-5":  {1.00, 5.00},
	"claude-sonnet-4-5": {3.00, 15.00},
}

// EstimateCost prices a completion in USD. Unknown and local models cost
// nothing. OpenRouter names such as "google/gemini-2.5-flash" are matched
// on the part after the vendor prefix, and dated snapshots
// ("claude-haiku-4-5-20251001") on their undated name.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	if i := strings.LastIndexByte(model, '/'); i >= 0 {
		model = model[i+1:]
	}
	p, ok := prices[model]
	if !ok {
		best := ""
		for name, candidate := range prices {
			if len(name) > len(best) && strings.HasPrefix(model, name+"-") {
				best, p = name, candidate
			}
		}
		if best == "" {
			return 0
		}
	}
	return (float64(inputTokens)*p.in + float64(outputTokens)*p.out) / 1e6
}
