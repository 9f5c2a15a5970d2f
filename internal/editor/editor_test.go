package editor

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func tempSession(t *testing.T) *Session {
	t.Helper()
	return &Session{
		TempPath: filepath.Join(t.TempDir(), TempName),
		Editor:   "true",
		In:       strings.NewReader(""),
		Out:      &bytes.Buffer{},
	}
}

func TestRun_ExportEditImport(t *testing.T) {
	s := tempSession(t)

	edited := false
	s.runEditor = func(editor, path string) error {
		edited = true
		return os.WriteFile(path, []byte("edited"), 0o644)
	}

	var imported string
	err := s.Run(
		func(w io.Writer) error {
			_, err := w.Write([]byte("exported"))
			return err
		},
		func(r io.Reader) error {
			data, err := io.ReadAll(r)
			imported = string(data)
			return err
		},
	)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !edited {
		t.Error("editor was not invoked")
	}
	if imported != "edited" {
		t.Errorf("imported = %q, want edited content", imported)
	}
	if _, err := os.Stat(s.TempPath); !os.IsNotExist(err) {
		t.Error("scratch file not removed after successful session")
	}
}

func TestRun_RemovesScratchWhenImportFails(t *testing.T) {
	s := tempSession(t)
	s.runEditor = func(editor, path string) error { return nil }

	err := s.Run(
		func(w io.Writer) error {
			_, err := w.Write([]byte("exported"))
			return err
		},
		func(io.Reader) error { return errors.New("bad document") },
	)
	if err == nil {
		t.Fatal("Run() expected import error")
	}

	if _, statErr := os.Stat(s.TempPath); !os.IsNotExist(statErr) {
		t.Error("scratch file not removed after failed import")
	}
}

func TestRun_ExportFailureCleansUp(t *testing.T) {
	s := tempSession(t)
	s.runEditor = func(editor, path string) error {
		t.Error("editor must not run when export fails")
		return nil
	}

	err := s.Run(
		func(io.Writer) error { return errors.New("decrypt failed") },
		func(io.Reader) error { return nil },
	)
	if err == nil {
		t.Fatal("Run() expected export error")
	}

	if _, statErr := os.Stat(s.TempPath); !os.IsNotExist(statErr) {
		t.Error("scratch file left behind after failed export")
	}
}

func TestRun_ResumeInterruptedSession(t *testing.T) {
	s := tempSession(t)
	s.In = strings.NewReader("c\n")

	if err := os.WriteFile(s.TempPath, []byte("leftover"), 0o644); err != nil {
		t.Fatal(err)
	}

	s.runEditor = func(editor, path string) error { return nil }

	exported := false
	var imported string
	err := s.Run(
		func(io.Writer) error {
			exported = true
			return nil
		},
		func(r io.Reader) error {
			data, err := io.ReadAll(r)
			imported = string(data)
			return err
		},
	)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if exported {
		t.Error("continuing a session must skip the fresh export")
	}
	if imported != "leftover" {
		t.Errorf("imported = %q, want interrupted session content", imported)
	}
}

func TestRun_AbortInterruptedSession(t *testing.T) {
	s := tempSession(t)
	s.In = strings.NewReader("a\n")

	if err := os.WriteFile(s.TempPath, []byte("leftover"), 0o644); err != nil {
		t.Fatal(err)
	}

	s.runEditor = func(editor, path string) error { return nil }

	var imported string
	err := s.Run(
		func(w io.Writer) error {
			_, err := w.Write([]byte("fresh"))
			return err
		},
		func(r io.Reader) error {
			data, err := io.ReadAll(r)
			imported = string(data)
			return err
		},
	)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if imported != "fresh" {
		t.Errorf("imported = %q, want fresh export after abort", imported)
	}

	prompt := s.Out.(*bytes.Buffer).String()
	if !strings.Contains(prompt, "interrupted edit session") {
		t.Errorf("prompt = %q, want resume question", prompt)
	}
}
