package stage

import (
	"errors"
	"testing"
)

func testTable() Table {
	return NewTable(
		Entry{Pattern: "/.*/", Info: Info{Environment: "dev", Key: "dev-key"}},
		Entry{Pattern: "prod", Info: Info{Environment: "prod", Key: "prod-key"}},
	)
}

func TestResolve_ExactMatchWins(t *testing.T) {
	info, err := testTable().Resolve("prod")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if info.Environment != "prod" {
		t.Errorf("Resolve() environment = %q, want prod", info.Environment)
	}
}

func TestResolve_PatternFallback(t *testing.T) {
	info, err := testTable().Resolve("anything")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if info.Environment != "dev" {
		t.Errorf("Resolve() environment = %q, want dev", info.Environment)
	}
}

func TestResolve_PatternIsFullStringMatch(t *testing.T) {
	table := NewTable(
		Entry{Pattern: "/ba.*/", Info: Info{Environment: "dev", Key: "dev-key"}},
	)

	if _, err := table.Resolve("baz"); err != nil {
		t.Errorf("Resolve(baz) error = %v, want match", err)
	}

	if _, err := table.Resolve("xbazx"); err == nil {
		t.Error("Resolve(xbazx) expected error, pattern must not match substrings")
	}
}

func TestResolve_UnknownStage(t *testing.T) {
	table := NewTable(
		Entry{Pattern: "prod", Info: Info{Environment: "prod", Key: "prod-key"}},
	)

	_, err := table.Resolve("dev")
	if err == nil {
		t.Fatal("Resolve() expected error for unknown stage")
	}

	var unknown *UnknownStageError
	if !errors.As(err, &unknown) {
		t.Fatalf("Resolve() error = %T, want *UnknownStageError", err)
	}
	if unknown.Stage != "dev" {
		t.Errorf("UnknownStageError.Stage = %q, want dev", unknown.Stage)
	}
}

func TestKMSKey_BareKeyGetsAliasPrefix(t *testing.T) {
	key, err := testTable().KMSKey("prod")
	if err != nil {
		t.Fatalf("KMSKey() error = %v", err)
	}
	if key != "alias/prod-key" {
		t.Errorf("KMSKey() = %q, want alias/prod-key", key)
	}
}

func TestKMSKey_QualifiedFormsPassThrough(t *testing.T) {
	table := NewTable(
		Entry{Pattern: "a", Info: Info{Environment: "dev", Key: "alias/my-key"}},
		Entry{Pattern: "b", Info: Info{Environment: "dev", Key: "arn:aws:kms:us-east-1:123456789012:key/abc"}},
	)

	for stageName, want := range map[string]string{
		"a": "alias/my-key",
		"b": "arn:aws:kms:us-east-1:123456789012:key/abc",
	} {
		key, err := table.KMSKey(stageName)
		if err != nil {
			t.Fatalf("KMSKey(%s) error = %v", stageName, err)
		}
		if key != want {
			t.Errorf("KMSKey(%s) = %q, want %q", stageName, key, want)
		}
	}
}

func TestKMSKey_MissingKey(t *testing.T) {
	table := NewTable(Entry{Pattern: "dev", Info: Info{Environment: "dev"}})

	if _, err := table.KMSKey("dev"); err == nil {
		t.Error("KMSKey() expected error for stage without a key")
	}
}

func TestEnvironment_Missing(t *testing.T) {
	table := NewTable(Entry{Pattern: "dev", Info: Info{Key: "dev-key"}})

	if _, err := table.Environment("dev"); err == nil {
		t.Error("Environment() expected error for stage without an environment")
	}
}

func TestMatches(t *testing.T) {
	if !Matches("dev", "dev") {
		t.Error("Matches() literal equality should match")
	}
	if Matches("dev", "devx") {
		t.Error("Matches() literal must not match a different name")
	}
	if !Matches("/ba.*/", "baz") {
		t.Error("Matches() pattern should match baz")
	}
	if Matches("/ba.*/", "xbazx") {
		t.Error("Matches() pattern must not match substrings")
	}
}

func TestIsPattern(t *testing.T) {
	if !IsPattern("/.*/") {
		t.Error("IsPattern(/.*/)  = false, want true")
	}
	if IsPattern("dev") {
		t.Error("IsPattern(dev) = true, want false")
	}
	if IsPattern("/") {
		t.Error("IsPattern(/) = true, want false")
	}
}
