// Package editor runs the interactive edit flow: export the decrypted
// document to a temporary file, hand it to an external editor, and
// re-import the result. An interrupted session leaves the temporary file
// behind; the next run offers to resume it.
package editor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// TempName is the recoverable scratch file used during an edit session.
const TempName = ".fleece_edit_tmp"

// Session drives one edit round trip.
type Session struct {
	// TempPath is the scratch file location; defaults to TempName in the
	// working directory when empty.
	TempPath string

	// Editor is the editor command line; it is split on whitespace and
	// invoked with the scratch file path appended.
	Editor string

	// Prompt IO for the resume question; default to the process stdio.
	In  io.Reader
	Out io.Writer

	// runEditor can be replaced in tests.
	runEditor func(editor, path string) error
}

// Run exports the document, opens the editor, and re-imports the edited
// file. The scratch file is removed on every exit path once the session
// begins; only an interrupted editor (process death) leaves it behind
// for the next run to offer resuming.
func (s *Session) Run(export func(io.Writer) error, importFn func(io.Reader) error) error {
	path := s.TempPath
	if path == "" {
		path = TempName
	}

	skipExport, err := s.checkInterrupted(path)
	if err != nil {
		return err
	}

	if !skipExport {
		if err := s.exportTo(path, export); err != nil {
			return err
		}
	}
	defer os.Remove(path)

	run := s.runEditor
	if run == nil {
		run = invokeEditor
	}
	if err := run(s.Editor, path); err != nil {
		return fmt.Errorf("running editor %q: %w", s.Editor, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reading edited file: %w", err)
	}
	defer f.Close()

	if err := importFn(f); err != nil {
		return fmt.Errorf("importing edited configuration: %w", err)
	}
	return nil
}

// checkInterrupted looks for a leftover scratch file and asks whether to
// continue or abort that session. Continuing skips the fresh export.
func (s *Session) checkInterrupted(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		return false, nil
	}

	out := s.Out
	if out == nil {
		out = os.Stdout
	}
	in := s.In
	if in == nil {
		in = os.Stdin
	}

	fmt.Fprint(out, "A previously interrupted edit session was found. Do you want to (C)ontinue that session or (A)bort it? ")

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false, fmt.Errorf("reading answer: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "a":
		if err := os.Remove(path); err != nil {
			return false, fmt.Errorf("removing interrupted session: %w", err)
		}
		return false, nil
	case "c":
		return true, nil
	default:
		return false, nil
	}
}

func (s *Session) exportTo(path string, export func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating edit file: %w", err)
	}

	if err := export(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("writing edit file: %w", err)
	}
	return nil
}

// invokeEditor runs the editor command with inherited stdio so terminal
// editors work.
func invokeEditor(editor, path string) error {
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command must not be empty")
	}

	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
