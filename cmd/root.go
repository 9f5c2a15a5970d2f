package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rackerlabs/fleece/internal/creds"
	"github.com/rackerlabs/fleece/internal/document"
	"github.com/rackerlabs/fleece/internal/kms"
	"github.com/rackerlabs/fleece/internal/settings"
	"github.com/rackerlabs/fleece/internal/stage"
	"github.com/rackerlabs/fleece/internal/walker"
)

var (
	flagConfig       string
	flagUsername     string
	flagAPIKey       string
	flagEnvironments string
	flagVerbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "fleece-config",
	Short: "Encrypted per-stage configuration management",
	Long: `fleece-config manages an encrypted, per-stage application
configuration document. Values tagged :encrypt: are envelope-encrypted
through KMS on import; render resolves the document for one stage and
emits it as YAML, JSON, an encrypted source stub, or SSM parameters.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (default is config.yml)")
	rootCmd.PersistentFlags().StringVarP(&flagUsername, "username", "u", "", "identity API username (defaults to $RS_USERNAME)")
	rootCmd.PersistentFlags().StringVarP(&flagAPIKey, "apikey", "k", "", "identity API key (defaults to $RS_API_KEY)")
	rootCmd.PersistentFlags().StringVarP(&flagEnvironments, "environments", "e", "", "path to environments.yml (default is ./environments.yml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	cobra.OnInitialize(initLogger)
}

func initLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if flagVerbose {
		level = zerolog.DebugLevel
	}

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().Level(level)
}

var loadedSettings *settings.Settings

// userSettings loads the optional settings file once; a broken file only
// logs a debug message so it can never block a command.
func userSettings() *settings.Settings {
	if loadedSettings != nil {
		return loadedSettings
	}

	path, err := settings.DefaultPath()
	if err == nil {
		loadedSettings, err = settings.Load(path)
	}
	if err != nil {
		log.Debug().Err(err).Msg("settings file not loaded")
		loadedSettings = &settings.Settings{}
	}
	return loadedSettings
}

// configPath resolves the config file location: flag, then settings,
// then config.yml in the working directory.
func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	if s := userSettings(); s.Config != "" {
		return s.Config
	}
	return "config.yml"
}

// environmentsPath resolves the environment catalog location.
func environmentsPath() string {
	if flagEnvironments != "" {
		return flagEnvironments
	}
	if s := userSettings(); s.Environments != "" {
		return s.Environments
	}
	return "./environments.yml"
}

// credsCatalog loads the environment catalog on its own, for commands
// that never need credentials.
func credsCatalog() (*creds.Catalog, error) {
	return creds.LoadCatalog(environmentsPath())
}

// credentialCache builds the per-run credential cache from the identity
// account flags (or their environment variables) and the catalog.
func credentialCache() (*creds.Cache, error) {
	catalog, err := creds.LoadCatalog(environmentsPath())
	if err != nil {
		return nil, err
	}

	username := flagUsername
	if username == "" {
		username = os.Getenv("RS_USERNAME")
	}
	apiKey := flagAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("RS_API_KEY")
	}

	return creds.NewCache(username, apiKey, catalog), nil
}

// loadDocument reads and parses the config file.
func loadDocument() (*document.Document, error) {
	data, err := os.ReadFile(configPath())
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", configPath(), err)
	}
	return document.Parse(data)
}

// app bundles the per-invocation pipeline: the stage table from the
// document, the credential cache, and the crypto gateway feeding the
// tree walker. Built once per command.
type app struct {
	stages  stage.Table
	creds   *creds.Cache
	gateway *kms.Gateway
	walker  *walker.Walker
}

func buildApp(doc *document.Document) (*app, error) {
	stages, err := doc.Stages()
	if err != nil {
		return nil, err
	}

	cache, err := credentialCache()
	if err != nil {
		return nil, err
	}

	gateway := kms.NewGateway(stages, cache)

	return &app{
		stages:  stages,
		creds:   cache,
		gateway: gateway,
		walker:  walker.New(gateway),
	}, nil
}
