package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Cache key prefixes, one per AI endpoint.
const (
	prefixQA      = "ai:qa:"
	prefixExplain = "ai:explain:"
	prefixSetup   = "ai:setup:"
)

// HashQuestion produces the stable fingerprint of a question: sha256 over
// the lower-cased, trimmed text, hex-encoded.
func HashQuestion(q string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(q))))
	return hex.EncodeToString(sum[:])
}

// QAKey is `ai:qa:<game_id>:<sha256_hex(lowercase_trim(query))>`.
func QAKey(gameID, query string) string {
	return prefixQA + gameID + ":" + HashQuestion(query)
}

// ExplainKey is `ai:explain:<game_id>:<sha256_hex(lowercase_trim(topic))>`.
func ExplainKey(gameID, topic string) string {
	return prefixExplain + gameID + ":" + HashQuestion(topic)
}

// SetupKey is `ai:setup:<game_id>`.
func SetupKey(gameID string) string {
	return prefixSetup + gameID
}

// GameTag names the tag set that groups a game's cached responses.
func GameTag(gameID string) string {
	return "game:" + gameID
}

// endpointPatterns returns the scan patterns covering one game's keys for
// the given endpoint, or all endpoints when endpoint is empty.
func endpointPatterns(gameID, endpoint string) []string {
	switch endpoint {
	case "qa":
		return []string{prefixQA + gameID + ":*"}
	case "explain":
		return []string{prefixExplain + gameID + ":*"}
	case "setup":
		return []string{prefixSetup + gameID}
	default:
		return []string{
			prefixQA + gameID + ":*",
			prefixExplain + gameID + ":*",
			prefixSetup + gameID,
		}
	}
}

// statsIdentity extracts the (game_id, question_hash) pair recorded in
// cache statistics from a cache key. Setup keys carry no question hash;
// the endpoint name stands in so the row stays identifiable.
func statsIdentity(key string) (gameID, questionHash string, ok bool) {
	parts := strings.Split(key, ":")
	if len(parts) < 3 || parts[0] != "ai" {
		return "", "", false
	}
	gameID = parts[2]
	if len(parts) >= 4 {
		return gameID, parts[3], true
	}
	return gameID, parts[1], true
}
