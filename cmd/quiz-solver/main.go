package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"llm-quiz-solver/pkg/config"
	"llm-quiz-solver/pkg/server"
)

var (
	email      string
	secret     string
	startURL   string
	configFile string
)

func main() {
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist, as long as env vars are set
	}

	rootCmd := &cobra.Command{
		Use:   "quiz-solver",
		Short: "Solve a chain of web-hosted quiz questions",
		Long:  `quiz-solver walks a quiz chain: it renders each question page, gathers linked data files and API responses, derives an answer, submits it for grading and follows the next URL until the chain ends or the time budget runs out.`,
		Run: func(cmd *cobra.Command, args []string) {
			reader := bufio.NewReader(os.Stdin)

			if startURL == "" {
				fmt.Print("Enter start URL: ")
				input, _ := reader.ReadString('\n')
				startURL = strings.TrimSpace(input)
				if startURL == "" {
					slog.Error("Start URL cannot be empty")
					os.Exit(1)
				}
			}
			if email == "" {
				fmt.Print("Enter email: ")
				input, _ := reader.ReadString('\n')
				email = strings.TrimSpace(input)
				if email == "" {
					slog.Error("Email cannot be empty")
					os.Exit(1)
				}
			}
			if secret == "" {
				fmt.Print("Enter secret: ")
				input, _ := reader.ReadString('\n')
				secret = strings.TrimSpace(input)
				if secret == "" {
					slog.Error("Secret cannot be empty")
					os.Exit(1)
				}
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				slog.Error("Failed to load configuration", "error", err)
				os.Exit(1)
			}

			engine, err := server.BuildEngine(cfg, slog.Default())
			if err != nil {
				slog.Error("Error initializing engine", "error", err)
				os.Exit(1)
			}

			slog.Info("Starting quiz chain", "url", startURL, "email", email)
			report := engine.Run(context.Background(), email, secret, startURL)

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				slog.Error("Failed to render report", "error", err)
				os.Exit(1)
			}
			fmt.Println(string(out))

			if report.Status != "completed" {
				os.Exit(1)
			}
		},
	}

	rootCmd.Flags().StringVarP(&email, "email", "e", "", "Email to submit answers under")
	rootCmd.Flags().StringVarP(&secret, "secret", "s", "", "Shared secret for the grading endpoint")
	rootCmd.Flags().StringVarP(&startURL, "url", "u", "", "URL of the first quiz question")
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to a YAML config file")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}
