package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/helpinghand/relay/internal/config"
	"github.com/helpinghand/relay/internal/graph"
	"github.com/helpinghand/relay/internal/persona"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and credential health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("relay doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Graph:")
	checkSet("Tenant ID", cfg.Graph.TenantID)
	checkSet("Client ID", cfg.Graph.ClientID)
	checkSet("Callback URL", cfg.Subscription.CallbackURL)
	if cfg.Graph.SiteID == "" {
		fmt.Printf("    %-14s not set (document uploads disabled)\n", "Site ID:")
	} else {
		fmt.Printf("    %-14s %s\n", "Site ID:", cfg.Graph.SiteID)
	}

	fmt.Println()
	fmt.Println("  Personas:")
	registry := persona.NewRegistry(cfg.Personas.DefinitionsDir)
	fmt.Printf("    %-14s %s (%d loaded)\n", "Definitions:", cfg.Personas.DefinitionsDir, registry.Len())

	creds := graph.LoadCredentials(cfg.Paths.CredentialsFile)
	if len(creds) == 0 {
		fmt.Printf("    %-14s %s (MISSING OR EMPTY)\n", "Credentials:", cfg.Paths.CredentialsFile)
	} else {
		fmt.Printf("    %-14s %s (OK)\n", "Credentials:", cfg.Paths.CredentialsFile)
	}
	if creds["_app"].ClientSecret == "" {
		fmt.Printf("    %-14s MISSING (message reads will fail)\n", "App secret:")
	} else {
		fmt.Printf("    %-14s present\n", "App secret:")
	}
	for _, p := range registry.All() {
		if creds.HasPersona(p.Key) {
			fmt.Printf("    %-14s can send\n", p.Key+":")
		} else {
			fmt.Printf("    %-14s NO CREDENTIALS (read-only)\n", p.Key+":")
		}
	}

	fmt.Println()
	fmt.Println("  Completions:")
	if cfg.Anthropic.APIKey == "" {
		fmt.Printf("    %-14s not set (personas will use fallback lines)\n", "API key:")
	} else {
		fmt.Printf("    %-14s present\n", "API key:")
	}
	fmt.Printf("    %-14s %s\n", "Model:", cfg.Anthropic.Model)
}

func checkSet(label, value string) {
	if value == "" {
		fmt.Printf("    %-14s MISSING\n", label+":")
	} else {
		fmt.Printf("    %-14s %s\n", label+":", value)
	}
}
