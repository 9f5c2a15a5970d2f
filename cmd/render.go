package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rackerlabs/fleece/internal/paramstore"
	"github.com/rackerlabs/fleece/internal/render"
)

var (
	flagRenderEnv     string
	flagRenderJSON    bool
	flagRenderEncrypt bool
	flagRenderPython  bool
	flagParamStore    string
	flagSSMKMSKey     string
)

func init() {
	renderCmd.Flags().StringVar(&flagRenderEnv, "environment", "", "environment name (default is the stage name)")
	renderCmd.Flags().BoolVar(&flagRenderJSON, "json", false, "use JSON format (default is YAML)")
	renderCmd.Flags().BoolVar(&flagRenderEncrypt, "encrypt", false, "encrypt rendered configuration")
	renderCmd.Flags().BoolVar(&flagRenderPython, "python", false, "generate Python module with encrypted configuration")
	renderCmd.Flags().StringVar(&flagParamStore, "parameter-store", "", "write configuration to the SSM parameter store using the given prefix")
	renderCmd.Flags().StringVar(&flagSSMKMSKey, "ssm-kms-key", "", "KMS key ID or alias for encrypting config in SSM (use with --parameter-store)")
	rootCmd.AddCommand(renderCmd)
}

var renderCmd = &cobra.Command{
	Use:   "render <stage>",
	Short: "Render configuration for one stage",
	Long: `Decrypts the config file, collapses every per-stage branch to the
value for the given stage, and emits the result: YAML or JSON text, an
encrypted chunk list, a generated source module, or SSM parameters.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func runRender(cmd *cobra.Command, args []string) error {
	stageName := args[0]

	doc, err := loadDocument()
	if err != nil {
		return err
	}

	a, err := buildApp(doc)
	if err != nil {
		return err
	}

	resolved, err := a.walker.Decrypt(cmd.Context(), doc.Config(), stageName, true)
	if err != nil {
		return err
	}

	// The delivery environment may differ from the stage used for branch
	// selection.
	targetStage := flagRenderEnv
	if targetStage == "" {
		targetStage = stageName
	}

	log.Debug().Str("stage", stageName).Str("target", targetStage).Msg("configuration resolved")

	if flagParamStore != "" {
		writer := paramstore.NewWriter(a.stages, a.creds, os.Stdout)
		return writer.Write(cmd.Context(), targetStage, flagParamStore, resolved, flagSSMKMSKey)
	}

	if flagRenderEncrypt || flagRenderPython {
		chunks, err := render.EncryptChunks(cmd.Context(), a.gateway, resolved, targetStage)
		if err != nil {
			return err
		}

		if flagRenderPython {
			fmt.Print(render.PythonModule(chunks))
			return nil
		}

		out, err := render.Data(chunks)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}

	format := render.FormatYAML
	if flagRenderJSON {
		format = render.FormatJSON
	}

	out, err := render.Text(resolved, format)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
