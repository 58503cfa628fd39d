package deontic

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// formulaNamespace seeds content-derived formula IDs.
var formulaNamespace = uuid.MustParse("6f1c2a52-6d0e-4c55-9a39-3c7f0b7f2d11")

// symbolNamespace seeds the digests that keep folded symbols distinct.
var symbolNamespace = uuid.MustParse("a3e5d0c4-1b7f-4e2a-8c61-5f9d2b4e7a10")

const (
	maxSymbolLen = 64
	digestLen    = 8
)

// StableID derives a deterministic ID from a formula's content.
// The same operator, agent and proposition always produce the same ID.
func StableID(f Formula) string {
	key := strings.Join([]string{
		string(f.Operator),
		strings.TrimSpace(f.Agent),
		strings.TrimSpace(f.Proposition),
	}, "\x1f")
	id := uuid.NewSHA1(formulaNamespace, []byte(key))
	return strings.ReplaceAll(id.String(), "-", "")[:16]
}

// Identifier turns free text into a lowercase [a-z0-9_] identifier.
// Runs of other characters collapse to one underscore. An empty result
// stays empty; callers decide the fallback.
func Identifier(text string) string {
	return identifier(text, maxSymbolLen)
}

// identifier folds text like Identifier, stopping at limit bytes (0: no limit).
func identifier(text string, limit int) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(text) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
		if limit > 0 && b.Len() >= limit {
			break
		}
	}
	return strings.Trim(b.String(), "_")
}

// digest is a short content hash appended when folding loses information.
func digest(text string) string {
	return uuid.NewSHA1(symbolNamespace, []byte(text)).String()[:digestLen]
}

// withDigest clips full so that full plus the digest of key fits maxSymbolLen.
// The digest follows a double underscore, which folding never produces, so
// digested symbols cannot meet folded ones. fallback replaces an empty stem.
func withDigest(full, key, fallback string) string {
	stem := full
	if len(stem) > maxSymbolLen-digestLen-2 {
		stem = strings.TrimRight(stem[:maxSymbolLen-digestLen-2], "_")
	}
	if stem == "" {
		stem = fallback
	}
	return stem + "__" + digest(key)
}

// phrase normalizes free text for symbol comparison: case and runs of
// whitespace or underscores are not significant.
func phrase(text string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(strings.ToLower(text), "_", " ")), " ")
}

// plainPhrase reports whether p holds only [a-z0-9] words, so folding it
// to an identifier keeps every distinction.
func plainPhrase(p string) bool {
	for _, r := range p {
		if r != ' ' && (r >= unicode.MaxASCII || !(unicode.IsLower(r) || unicode.IsDigit(r))) {
			return false
		}
	}
	return true
}

// phraseSymbol maps text to an identifier that is distinct for every distinct
// phrase. Plain short phrases fold as-is; anything else carries a digest.
func phraseSymbol(text string) string {
	p := phrase(text)
	full := identifier(p, 0)
	if plainPhrase(p) && len(full) <= maxSymbolLen {
		return full
	}
	return withDigest(full, p, "")
}

// AgentSymbol is the backend identifier for an agent. Empty agents map to agent_any.
func AgentSymbol(agent string) string {
	if phrase(agent) == "" {
		return "agent_any"
	}
	return "agent_" + phraseSymbol(agent)
}

// PropositionSymbol is the backend identifier for a proposition, or "" when
// the text has no identifier characters at all. Propositions differing only
// in case or spacing share a symbol; any other difference yields a distinct one.
func PropositionSymbol(proposition string) string {
	if Identifier(proposition) == "" {
		return ""
	}
	return "prop_" + phraseSymbol(proposition)
}

// FileStem sanitizes a formula or rule-set ID for use in file names and
// proof-assistant module names. IDs that are already clean identifiers are
// kept; every other ID gets a digest of its raw text, so distinct IDs never
// share a stem. Callers always prefix it, so a leading digit is fine.
func FileStem(id string) string {
	full := identifier(id, 0)
	if full != "" && full == id && len(full) <= maxSymbolLen {
		return full
	}
	return withDigest(full, id, "unnamed")
}
