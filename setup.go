package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/swipswaps/Marketplace-Listing-Generator/config"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/provider"
)

// requiredEnvVars lists the environment variables the app cannot start
// without. API keys are not among them; those live encrypted in the
// database and are managed from the settings screen.
var requiredEnvVars = []string{"LISTING_SECRET_KEY"}

// checkRequiredConfig returns the names of any missing required
// environment variables.
func checkRequiredConfig() []string {
	var missing []string
	for _, v := range requiredEnvVars {
		if os.Getenv(v) == "" {
			missing = append(missing, v)
		}
	}
	return missing
}

// isInteractiveTerminal returns true if both stdin and stdout are TTYs.
// This is used to determine if we can run the interactive setup wizard.
func isInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// runSetupWizard runs an interactive first-start wizard. It generates the
// encryption secret, optionally collects a Gemini API key (verified
// live), and writes the env file. Returns the entered Gemini key (may be
// empty) and whether startup should continue.
func runSetupWizard() (string, bool) {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		MarginBottom(1)

	fmt.Println()
	fmt.Println(titleStyle.Render("🏷  Marketplace Listing Generator - First-time Setup"))
	fmt.Println()

	verifier := provider.NewVerifier()
	var geminiKey string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Gemini API Key (optional)").
				Description("Get yours at https://aistudio.google.com/apikey — leave empty to add later in settings").
				Value(&geminiKey).
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					result := verifier.Verify(ctx, provider.Gemini, s)
					if !result.Success {
						return errors.New(result.Message)
					}
					return nil
				}),
		),
	).WithTheme(huh.ThemeBase16())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("\nSetup cancelled.")
			return "", false
		}
		fmt.Printf("\nError: %v\n", err)
		return "", false
	}

	secretKey := generateSecretKey()

	envVars := map[string]string{
		"LISTING_SECRET_KEY": secretKey,
	}

	configPath, err := writeEnvFile(envVars)
	if err != nil {
		fmt.Printf("\nError saving configuration: %v\n", err)
		waitOnWindows()
		return "", false
	}

	for k, v := range envVars {
		os.Setenv(k, v)
	}

	successStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	pathStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245"))

	fmt.Println()
	fmt.Println(successStyle.Render("✓ Configuration saved"))
	fmt.Println(pathStyle.Render("  " + configPath))
	fmt.Println()
	fmt.Println("Starting server...")
	fmt.Println()

	return geminiKey, true
}

func generateSecretKey() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based if crypto/rand fails (unlikely)
		return fmt.Sprintf("listing-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}

// writeEnvFile writes the configuration to the config file.
// Uses restrictive permissions (0600) since the file contains secrets.
// Returns the path where the config was written.
func writeEnvFile(envVars map[string]string) (string, error) {
	configPath, err := config.EnvFilePath()
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(configPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	order := []string{"LISTING_SECRET_KEY"}
	for _, key := range order {
		if val, ok := envVars[key]; ok {
			if _, err := fmt.Fprintf(f, "%s=%q\n", key, val); err != nil {
				return "", fmt.Errorf("failed to write %s: %w", key, err)
			}
		}
	}

	return configPath, nil
}

// waitOnWindows pauses execution on Windows so users can see error messages
// before the console window closes.
func waitOnWindows() {
	if runtime.GOOS == "windows" {
		fmt.Println()
		fmt.Println("Press Enter to exit...")
		fmt.Scanln()
	}
}

// fatalWithWait logs a fatal error and waits on Windows before exiting.
func fatalWithWait(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Error().Msg(msg)
	waitOnWindows()
	os.Exit(1)
}
