package gateway

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// modelEncodings maps model name prefixes to their tiktoken encoding.
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

const fallbackEncoding = "cl100k_base"

var (
	encoderMu    sync.Mutex
	encoderCache = make(map[string]*tiktoken.Tiktoken)
)

func encodingFor(model string) string {
	if enc, ok := modelEncodings[model]; ok {
		return enc
	}
	for prefix, enc := range modelEncodings {
		if strings.HasPrefix(model, prefix) {
			return enc
		}
	}
	return fallbackEncoding
}

// EstimateTokens approximates the token count of the given texts for models
// whose providers omit usage data. Falls back to a bytes/4 heuristic if the
// encoding cannot be loaded (e.g. offline first run).
func EstimateTokens(model string, texts ...string) int {
	name := encodingFor(model)

	encoderMu.Lock()
	enc, ok := encoderCache[name]
	if !ok {
		var err error
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			encoderMu.Unlock()
			total := 0
			for _, t := range texts {
				total += len(t) / 4
			}
			return total
		}
		encoderCache[name] = enc
	}
	encoderMu.Unlock()

	total := 0
	for _, t := range texts {
		total += len(enc.Encode(t, nil, nil))
	}
	return total
}
