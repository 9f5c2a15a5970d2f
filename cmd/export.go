package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rackerlabs/fleece/internal/document"
)

var flagExportJSON bool

func init() {
	exportCmd.Flags().BoolVar(&flagExportJSON, "json", false, "use JSON format (default is YAML)")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export configuration to stdout",
	Long: `Decrypts the config file while keeping every stage branch in place
and writes the document to standard output. Decrypted values are tagged
:encrypt: so the output can be edited and imported again. When no config
file exists yet, a skeleton document built from the environment catalog
is exported instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportTo(cmd, os.Stdout, flagExportJSON)
	},
}

func exportTo(cmd *cobra.Command, w io.Writer, asJSON bool) error {
	doc, err := exportableDocument(cmd)
	if err != nil {
		return err
	}

	var out []byte
	if asJSON {
		out, err = document.MarshalJSON(doc.Root, 4)
	} else {
		out, err = document.MarshalYAML(doc.Root)
	}
	if err != nil {
		return err
	}

	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("writing exported configuration: %w", err)
	}
	return nil
}

// exportableDocument decrypts the config file for export, or builds a
// skeleton document from the environment catalog when the file does not
// exist yet.
func exportableDocument(cmd *cobra.Command) (*document.Document, error) {
	if _, err := os.Stat(configPath()); os.IsNotExist(err) {
		return skeletonDocument()
	}

	doc, err := loadDocument()
	if err != nil {
		return nil, err
	}

	a, err := buildApp(doc)
	if err != nil {
		return nil, err
	}

	decrypted, err := a.walker.Decrypt(cmd.Context(), doc.Config(), "", false)
	if err != nil {
		return nil, err
	}
	doc.SetConfig(decrypted)

	return doc, nil
}

// skeletonDocument assigns every catalog environment to a same-named
// stage with a placeholder key, giving new projects a starting point.
func skeletonDocument() (*document.Document, error) {
	catalog, err := credsCatalog()
	if err != nil {
		return nil, err
	}

	stages := document.NewMapping()
	for _, env := range catalog.Environments {
		stages.Pairs = append(stages.Pairs, document.Pair{
			Key: env.Name,
			Value: document.NewMapping(
				document.Pair{Key: "environment", Value: document.NewScalar(env.Name)},
				document.Pair{Key: "key", Value: document.NewScalar("enter-key-name-here")},
			),
		})
	}

	root := document.NewMapping(
		document.Pair{Key: "stages", Value: stages},
		document.Pair{Key: "config", Value: document.NewMapping()},
	)
	return &document.Document{Root: root}, nil
}
