package service

import "testing"

func TestNewResolvesLegacyAliases(t *testing.T) {
	d, err := New(Options{
		Source:          "print('hi')",
		Lang:            "es6",
		ThemeSource:     "dark",
		PresenterSource: "grid",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.Code != "print('hi')" {
		t.Errorf("Code = %q", d.Code)
	}
	if d.Language != "babel" {
		t.Errorf("Language = %q, want babel", d.Language)
	}
	if d.View != "dark" || d.Presenter != "grid" {
		t.Errorf("View/Presenter = %q/%q", d.View, d.Presenter)
	}
}

func TestNewRejectsMissingCode(t *testing.T) {
	if _, err := New(Options{Language: "bash"}); err == nil {
		t.Error("expected ConfigurationError for missing code")
	}
}

func TestNewRejectsUnknownLanguage(t *testing.T) {
	if _, err := New(Options{Code: "x", Language: "cobol"}); err == nil {
		t.Error("expected ConfigurationError for unknown language")
	}
}

func TestWithCodeDoesNotMutateOriginal(t *testing.T) {
	d, err := New(Options{Code: "original", Language: "bash"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	override := d.WithCode("overridden")
	if d.Code != "original" {
		t.Errorf("original descriptor mutated: %q", d.Code)
	}
	if override.Code != "overridden" {
		t.Errorf("override Code = %q", override.Code)
	}
}
