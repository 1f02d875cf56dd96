package gomtl

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// HashText computes the SHA-256 hash of the text.
func HashText(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}

// CacheKey builds the cache key for a request: the hash of everything that
// shapes the prompt, followed by the readable operation and locale pair.
func CacheKey(req Request, model string) string {
	var b strings.Builder
	b.WriteString(req.Text)
	for _, t := range req.Texts {
		b.WriteString("\x00")
		b.WriteString(t)
	}
	b.WriteString("\x01" + req.Context)
	b.WriteString("\x01" + req.Glossary.String())
	b.WriteString("\x01" + string(req.Style))
	b.WriteString("\x01" + strconv.Itoa(req.MaxWords))
	b.WriteString("\x01" + strconv.FormatBool(req.PreserveHTML))

	return HashText(b.String()) + ":" + string(req.Operation) + ":" +
		req.SourceLocale + ":" + req.TargetLocale + ":" + model
}
