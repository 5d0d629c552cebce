package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"

	"github.com/sableworks/bulwark/pkg/providers"
)

// Fingerprint derives the cache key for a request.
//
// The key is a SHA-256 hex digest over every request field that affects
// the response: provider, model, the messages in order, sampling
// parameters, stop sequences, and the extra parameters sorted by key.
// Field values are length-prefixed so no two field sequences collide by
// concatenation.
func Fingerprint(req *providers.ChatRequest) string {
	h := sha256.New()

	writeField := func(s string) {
		// Length prefix keeps "ab"+"c" distinct from "a"+"bc".
		h.Write([]byte(strconv.Itoa(len(s))))
		h.Write([]byte{':'})
		h.Write([]byte(s))
	}

	writeField(req.Provider)
	writeField(req.Model)

	for _, m := range req.Messages {
		writeField(m.Role)
		writeField(m.Content)
		writeField(m.Name)
	}

	writeField(strconv.FormatFloat(req.Temperature, 'g', -1, 64))
	writeField(strconv.Itoa(req.MaxTokens))
	writeField(strconv.FormatFloat(req.TopP, 'g', -1, 64))

	for _, s := range req.Stop {
		writeField(s)
	}

	if len(req.Extra) > 0 {
		keys := make([]string, 0, len(req.Extra))
		for k := range req.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			writeField(k)
			writeField(req.Extra[k])
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}
