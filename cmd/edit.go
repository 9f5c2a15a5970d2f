package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rackerlabs/fleece/internal/editor"
)

var (
	flagEditor   string
	flagEditJSON bool
)

func init() {
	editCmd.Flags().StringVar(&flagEditor, "editor", "", `text editor (defaults to $FLEECE_EDITOR, or else "vi")`)
	editCmd.Flags().BoolVar(&flagEditJSON, "json", false, "use JSON format (default is YAML)")
	rootCmd.AddCommand(editCmd)
}

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration interactively",
	Long: `Exports the decrypted document to a temporary file, opens it in an
external editor, and imports the result back. If a previous edit session
was interrupted, offers to resume or discard it.`,
	Args: cobra.NoArgs,
	RunE: runEdit,
}

func runEdit(cmd *cobra.Command, args []string) error {
	session := &editor.Session{Editor: resolveEditor()}

	return session.Run(
		func(w io.Writer) error { return exportTo(cmd, w, flagEditJSON) },
		func(r io.Reader) error { return importFrom(cmd, r) },
	)
}

// resolveEditor picks the editor command: flag, then FLEECE_EDITOR, then
// the settings file, then vi.
func resolveEditor() string {
	if flagEditor != "" {
		return flagEditor
	}
	if env := os.Getenv("FLEECE_EDITOR"); env != "" {
		return env
	}
	if s := userSettings(); s.Editor != "" {
		return s.Editor
	}
	return "vi"
}
