package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Services  struct {
		Database struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		} `json:"database"`
	} `json:"services"`
}

var (
	timeout time.Duration

	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3FB950"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).Width(10)
)

var boxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#444444")).
	Padding(0, 1)

var rootCmd = &cobra.Command{
	Use:          "health-test [url]",
	Short:        "Probe the /health endpoint of a running server",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		url := "http://localhost:8000/health"
		if len(args) > 0 {
			url = args[0]
		}

		client := &http.Client{Timeout: timeout}
		health, err := check(client, url)
		if health != nil {
			fmt.Println(render(url, health))
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, failStyle.Render("✗ "+err.Error()))
			return err
		}
		fmt.Println(okStyle.Render("✓ Health check passed"))
		return nil
	},
}

func init() {
	rootCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
}

// check fetches url and verifies the server and its database report ok. The
// parsed response is returned whenever the body could be decoded.
func check(client *http.Client, url string) (*HealthResponse, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("connect to health endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}

	switch {
	case resp.StatusCode != http.StatusOK:
		return &health, fmt.Errorf("health check failed with status %d", resp.StatusCode)
	case health.Status != "ok":
		return &health, fmt.Errorf("health status is %q", health.Status)
	case health.Services.Database.Status != "ok":
		return &health, fmt.Errorf("database status is %q: %s", health.Services.Database.Status, health.Services.Database.Error)
	}
	return &health, nil
}

func render(url string, h *HealthResponse) string {
	status := func(s string) string {
		if s == "ok" {
			return okStyle.Render(s)
		}
		return failStyle.Render(s)
	}
	rows := []string{
		labelStyle.Render("URL") + url,
		labelStyle.Render("Status") + status(h.Status),
		labelStyle.Render("Database") + status(h.Services.Database.Status),
		labelStyle.Render("Version") + h.Version,
		labelStyle.Render("Time") + h.Timestamp,
	}
	if h.Services.Database.Error != "" {
		rows = append(rows, labelStyle.Render("DB error")+h.Services.Database.Error)
	}
	return boxStyle.Render(strings.Join(rows, "\n"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
