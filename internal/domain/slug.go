// Package domain slug.go contains slug validation and candidate generation.
package domain

import (
	"crypto/rand"
	"fmt"
)

// SlugMinLen and SlugMaxLen bound user-supplied slugs.
const (
	SlugMinLen = 4
	SlugMaxLen = 64
)

// generatedAlphabet is the character set used for auto-generated slugs.
// User-supplied slugs may additionally use '_' and '-'.
const generatedAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GeneratedSlugLen is the length of an auto-generated slug candidate.
const GeneratedSlugLen = 8

// MaxSlugGenerationAttempts bounds retries for auto-generated slugs before
// the coordinator gives up with ErrSlugExhausted.
const MaxSlugGenerationAttempts = 8

// ValidateSlug enforces the lexical rules of : length 4-64,
// character set [A-Za-z0-9_-], and not a reserved route segment.
func ValidateSlug(slug string, reserved map[string]struct{}) error {
	if len(slug) < SlugMinLen || len(slug) > SlugMaxLen {
		return ErrSlugInvalid
	}
	for i := 0; i < len(slug); i++ {
		c := slug[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return ErrSlugInvalid
		}
	}
	if reserved != nil {
		if _, ok := reserved[slug]; ok {
			return ErrSlugInvalid
		}
	}
	return nil
}

// GenerateSlugCandidate returns a random slug candidate of GeneratedSlugLen
// drawn from generatedAlphabet. A candidate can still equal a reserved route
// segment of the same length (e.g. "keycheck" or "password"), so callers run
// it through ValidateSlug before use, as on the user-supplied path.
func GenerateSlugCandidate() (string, error) {
	b := make([]byte, GeneratedSlugLen)
	idx := make([]byte, GeneratedSlugLen)
	if _, err := rand.Read(idx); err != nil {
		return "", fmt.Errorf("generate slug: %w", err)
	}
	n := len(generatedAlphabet)
	for i, v := range idx {
		b[i] = generatedAlphabet[int(v)%n]
	}
	return string(b), nil
}
