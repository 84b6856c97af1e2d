package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/roshni/backend/internal/config"
	"github.com/roshni/backend/internal/db"
	"github.com/roshni/backend/internal/logger"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	cfgFile  string
	seedFile string

	stdin = bufio.NewReader(os.Stdin)
)

var rootCmd = &cobra.Command{
	Use:   "roshni-seed",
	Short: "Seed roles and initial users",
	Long: `Runs migrations, inserts the standard roles and creates the users
listed in a YAML seed file. Users without a password in the file are
prompted for one when running in a terminal.

Example seed file:
  users:
    - email: commander@roshni.example
      full_name: Duty Commander
      role: commander`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Options{ConfigFile: cfgFile})
		if err != nil {
			return err
		}
		logger.Initialize(cfg.Log)

		users, err := db.LoadSeedFile(seedFile)
		if err != nil {
			return err
		}
		for i := range users {
			if users[i].Password != "" {
				continue
			}
			password, err := promptPassword(users[i].Email)
			if err != nil {
				return err
			}
			users[i].Password = password
		}

		conn, err := db.Connect(cfg.Database)
		if err != nil {
			return err
		}
		if err := db.AutoMigrate(conn); err != nil {
			return err
		}

		ctx := cmd.Context()
		if _, err := db.SeedRoles(ctx, conn); err != nil {
			return err
		}
		created, err := db.SeedUsers(ctx, conn, users)
		if err != nil {
			return err
		}

		logger.Info("Database seeding completed successfully", map[string]interface{}{
			"users_created": created,
			"users_in_file": len(users),
		})
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "YAML config file (optional)")
	rootCmd.Flags().StringVarP(&seedFile, "file", "f", "data/seed-users.yaml", "YAML file with the users to create")
}

// promptPassword reads a password without echo. Outside a terminal it reads
// one line from stdin so the command can be scripted.
func promptPassword(email string) (string, error) {
	fmt.Fprintf(os.Stderr, "Password for %s: ", email)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		if len(raw) == 0 {
			return "", fmt.Errorf("empty password for %s", email)
		}
		return string(raw), nil
	}

	line, err := stdin.ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("read password for %s: %w", email, err)
		}
		return "", fmt.Errorf("empty password for %s", email)
	}
	return line, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
