package prover

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"deonticprover/internal/deontic"
)

var (
	// ErrTranslationFailed is returned when a builder is handed an unsuccessful translation.
	ErrTranslationFailed = errors.New("translation failed")

	// ErrUnsupportedBackend is returned for backends outside the closed set
	// or lacking the requested artifact kind.
	ErrUnsupportedBackend = errors.New("unsupported backend")
)

// BuildArtifact renders the backend-native script for one formula.
// Output depends only on its arguments.
func BuildArtifact(b BackendID, f deontic.Formula, t deontic.TranslationOutcome) (string, error) {
	spec, ok := lookupBackend(b)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedBackend, b)
	}
	if !t.Success {
		return "", ErrTranslationFailed
	}
	return spec.build(f, t), nil
}

// BuildConsistencyArtifact renders one script asserting every successful
// translation in order. Failed translations are skipped.
func BuildConsistencyArtifact(b BackendID, translations []deontic.TranslationOutcome) (string, error) {
	spec, ok := lookupBackend(b)
	if !ok || spec.consistency == nil {
		return "", fmt.Errorf("%w: %s has no consistency check", ErrUnsupportedBackend, b)
	}
	asserted := make([]deontic.TranslationOutcome, 0, len(translations))
	for _, t := range translations {
		if t.Success {
			asserted = append(asserted, t)
		}
	}
	return spec.consistency(asserted), nil
}

// ArtifactName is the file name used for a formula's artifact on backend b.
// The backend suffix keeps concurrent runs of one formula apart.
func ArtifactName(b BackendID, formulaID string) string {
	spec, _ := lookupBackend(b)
	return fmt.Sprintf("formula_%s_%s.%s", deontic.FileStem(formulaID), b, extensionOr(spec, "txt"))
}

// ConsistencyArtifactName is the file name used for a rule set's consistency script.
func ConsistencyArtifactName(b BackendID, ruleSet string) string {
	spec, _ := lookupBackend(b)
	return fmt.Sprintf("consistency_%s_%s.%s", deontic.FileStem(ruleSet), b, extensionOr(spec, "txt"))
}

func extensionOr(spec backendSpec, fallback string) string {
	if spec.extension == "" {
		return fallback
	}
	return spec.extension
}

// writeArtifact atomically replaces dir/name with content. Artifacts are
// never removed afterwards.
func writeArtifact(dir, name, content string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create working directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return "", fmt.Errorf("failed to create artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return path, nil
}
