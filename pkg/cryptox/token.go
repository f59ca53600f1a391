package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Token format constants.
const (
	// TokenBytes is the raw entropy drawn per token (256 bits).
	TokenBytes = 32
	// TokenHexLength is the encoded token length (two hex chars per byte).
	TokenHexLength = TokenBytes * 2
	// TokenSaltBytes is the raw salt length used for token hashing.
	TokenSaltBytes = 16
	// MinTokenLength is the shortest token ValidateTokenStrength accepts as
	// well-formed. Anything shorter is rejected outright.
	MinTokenLength = 32
	// MinEntropyBitsPerByte is the strength floor for generated tokens.
	// Tokens at or below this measure are flagged, not rejected.
	MinEntropyBitsPerByte = 7.5
)

// TokenMetadata describes a freshly generated token. The checksum binds the
// token value to its generation time and feeds the tamper-detection
// heuristic; it carries no secret material of its own.
type TokenMetadata struct {
	IssuedAt time.Time
	Entropy  float64
	Checksum string
}

// GenerateToken draws TokenBytes of cryptographically secure randomness and
// returns it as a lowercase hex string of exactly TokenHexLength characters,
// along with generation metadata.
//
// The entropy estimate is a health check: with overwhelming probability it
// exceeds MinEntropyBitsPerByte, and a caller that observes a lower value is
// free to discard the token and generate another. Failure of the host RNG is
// the only error path.
func GenerateToken() (string, TokenMetadata, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", TokenMetadata{}, fmt.Errorf("failed to generate random token: %w", err)
	}

	token := hex.EncodeToString(buf)
	issuedAt := time.Now().UTC()

	meta := TokenMetadata{
		IssuedAt: issuedAt,
		Entropy:  EstimateEntropy(token),
		Checksum: tokenChecksum(token, issuedAt),
	}
	return token, meta, nil
}

// HashToken computes the storable form of a token: a fresh random salt plus
// a SHA-256 digest over token+salt, encoded as "<salt-hex>:<digest-hex>".
// The plaintext token is never stored.
func HashToken(token string) (string, error) {
	salt := make([]byte, TokenSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate token salt: %w", err)
	}
	return HashTokenWithSalt(token, hex.EncodeToString(salt)), nil
}

// HashTokenWithSalt is the deterministic half of HashToken. Exposed so
// verification (and tests) can recompute a digest for a known salt.
func HashTokenWithSalt(token, salt string) string {
	sum := sha256.Sum256([]byte(token + salt))
	return salt + ":" + hex.EncodeToString(sum[:])
}

// VerifyToken recomputes the salted digest for token and compares it against
// the stored "<salt>:<digest>" value in constant time. Malformed stored
// values and empty tokens fail closed (false) rather than erroring; only
// VerifyToken's boolean result is authoritative for authorization decisions.
func VerifyToken(token, stored string) bool {
	if token == "" {
		return false
	}

	salt, digest, ok := strings.Cut(stored, ":")
	if !ok || salt == "" || len(digest) != sha256.Size*2 {
		return false
	}

	sum := sha256.Sum256([]byte(token + salt))
	computed := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}

// StrengthResult reports how ValidateTokenStrength judged a token.
type StrengthResult struct {
	// Valid is false for malformed tokens (too short, non-hex). These must
	// be rejected outright.
	Valid bool
	// Secure is false for well-formed tokens whose measured entropy is at
	// or below MinEntropyBitsPerByte. These should be logged, not rejected;
	// an older legitimately generated token can land here.
	Secure  bool
	Entropy float64
	Reason  string
}

// ValidateTokenStrength classifies a presented token as invalid, insecure,
// or acceptable.
func ValidateTokenStrength(token string) StrengthResult {
	if len(token) < MinTokenLength {
		return StrengthResult{Reason: "token too short"}
	}
	if !isHex(token) {
		return StrengthResult{Reason: "token contains non-hexadecimal characters"}
	}

	entropy := EstimateEntropy(token)
	if entropy <= MinEntropyBitsPerByte {
		return StrengthResult{
			Valid:   true,
			Entropy: entropy,
			Reason:  "token entropy below secure threshold",
		}
	}

	return StrengthResult{Valid: true, Secure: true, Entropy: entropy}
}

// TamperResult is the outcome of the DetectTampering heuristic.
type TamperResult struct {
	Manipulated bool
	Confidence  float64
	Reasons     []string
}

// DetectTampering compares a received token against the original it claims
// to be, accumulating evidence of manipulation into a confidence score in
// [0,1]. A score above 0.5 marks the token as manipulated.
//
// This is a diagnostic signal for audit logging only. It must never gate
// authorization; use VerifyToken for that.
func DetectTampering(original, received string, meta *TokenMetadata) TamperResult {
	var (
		confidence float64
		reasons    []string
	)

	if len(original) != len(received) {
		confidence += 0.4
		reasons = append(reasons, "length mismatch")
	}
	if isHex(original) && !isHex(received) {
		confidence += 0.3
		reasons = append(reasons, "character class mismatch")
	}
	if drift := math.Abs(EstimateEntropy(original) - EstimateEntropy(received)); drift > 1.0 {
		confidence += 0.2
		reasons = append(reasons, "entropy drift")
	}
	if meta != nil && tokenChecksum(received, meta.IssuedAt) != meta.Checksum {
		confidence += 0.3
		reasons = append(reasons, "checksum mismatch")
	}

	confidence = math.Min(confidence, 1.0)
	return TamperResult{
		Manipulated: confidence > 0.5,
		Confidence:  confidence,
		Reasons:     reasons,
	}
}

// EstimateEntropy returns a Shannon-entropy estimate in bits per byte of the
// underlying value. Tokens are hex-encoded, so the estimate is computed over
// the character distribution and doubled (two hex chars encode one byte).
// The plug-in estimator underreports badly on short samples, so the
// Miller-Madow bias correction is applied; a 64-char token from a good RNG
// then measures 7.5+ in well over 99% of draws.
func EstimateEntropy(token string) float64 {
	if token == "" {
		return 0
	}

	var freq [256]int
	for i := 0; i < len(token); i++ {
		freq[token[i]]++
	}

	length := float64(len(token))
	var perChar float64
	var distinct int
	for _, n := range freq {
		if n == 0 {
			continue
		}
		distinct++
		p := float64(n) / length
		perChar -= p * math.Log2(p)
	}

	perChar += float64(distinct-1) / (2 * length * math.Ln2)

	return perChar * 2
}

// tokenChecksum derives a short non-secret fingerprint binding a token value
// to its generation timestamp.
func tokenChecksum(token string, issuedAt time.Time) string {
	sum := sha256.Sum256([]byte(token + strconv.FormatInt(issuedAt.Unix(), 10)))
	return hex.EncodeToString(sum[:8])
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
