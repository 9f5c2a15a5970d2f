package cmd

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rackerlabs/fleece/internal/stage"
)

const statusMaxConcurrency = 4

var flagStatusCheckCreds bool

func init() {
	statusCmd.Flags().BoolVar(&flagStatusCheckCreds, "check-credentials", false, "also verify that credentials can be obtained for every environment")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stage assignments and environment health at a glance",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	doc, err := loadDocument()
	if err != nil {
		return err
	}

	a, err := buildApp(doc)
	if err != nil {
		return err
	}

	catalog, err := credsCatalog()
	if err != nil {
		return err
	}

	problems := 0
	for _, entry := range a.stages.Entries() {
		line := describeStage(entry)
		if _, err := catalog.Account(entry.Info.Environment); err != nil {
			line += "  [environment missing from catalog]"
			problems++
		}
		fmt.Println(line)
	}

	if flagStatusCheckCreds {
		if err := checkCredentials(cmd, a); err != nil {
			return err
		}
	}

	if problems > 0 {
		return fmt.Errorf("%d stage(s) have problems", problems)
	}
	return nil
}

// describeStage formats one stage table row with its resolved key form.
func describeStage(entry stage.Entry) string {
	keyForm := "bare key (will be qualified as alias/" + entry.Info.Key + ")"
	switch {
	case entry.Info.Key == "":
		keyForm = "no key configured"
	case strings.HasPrefix(entry.Info.Key, "alias/"):
		keyForm = "key alias"
	case strings.HasPrefix(entry.Info.Key, "arn:"):
		keyForm = "key ARN"
	}

	return fmt.Sprintf("%-20s environment=%-12s %s", entry.Pattern, entry.Info.Environment, keyForm)
}

// checkCredentials obtains credentials for every distinct environment,
// concurrently with a bounded limit. The credential cache memoizes each
// result, so later commands in scripts pay nothing extra.
func checkCredentials(cmd *cobra.Command, a *app) error {
	environments := distinctEnvironments(a.stages)

	g := new(errgroup.Group)
	g.SetLimit(statusMaxConcurrency)

	var mu sync.Mutex
	results := make(map[string]error, len(environments))

	for _, env := range environments {
		env := env
		g.Go(func() error {
			_, err := a.creds.Get(cmd.Context(), env)
			mu.Lock()
			results[env] = err
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, env := range environments {
		if err := results[env]; err != nil {
			fmt.Printf("credentials %-12s ERROR - %s\n", env, err)
			failed++
			continue
		}
		fmt.Printf("credentials %-12s ok\n", env)
	}

	if failed > 0 {
		return fmt.Errorf("credentials unavailable for %d environment(s)", failed)
	}
	return nil
}

func distinctEnvironments(stages stage.Table) []string {
	seen := make(map[string]bool)
	var out []string
	for _, entry := range stages.Entries() {
		if entry.Info.Environment == "" || seen[entry.Info.Environment] {
			continue
		}
		seen[entry.Info.Environment] = true
		out = append(out, entry.Info.Environment)
	}
	sort.Strings(out)
	return out
}
