package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/envsync/envsync/internal/config"
	"github.com/envsync/envsync/internal/lock"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View the configuration and check the connection parameters of an environment.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the current config",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := currentConfig()

		fmt.Println("Current configuration:")
		fmt.Println()
		fmt.Printf("  Data dir:         %s\n", cfg.DataDir)
		fmt.Printf("  Object store:\n")
		fmt.Printf("    Prefix:         %s\n", cfg.ObjectStore.Prefix)
		fmt.Printf("    Region:         %s\n", cfg.ObjectStore.Region)
		fmt.Printf("  Load:\n")
		fmt.Printf("    Max retries:    %d\n", cfg.Load.MaxRetries)
		fmt.Printf("    Purge retries:  %d\n", cfg.Load.PurgeMaxRetries)
		fmt.Printf("    Enable retries: %d\n", cfg.Load.EnableConstraintRetries)
		fmt.Printf("    Chunk size:     %d\n", cfg.Load.ChunkSize)
		fmt.Printf("  Migrations:\n")
		fmt.Printf("    Folder:         %s\n", cfg.Migrations.Folder)
		fmt.Printf("    Start version:  %s\n", cfg.Migrations.StartingVersion)
		fmt.Printf("  Logging:\n")
		fmt.Printf("    Level:          %s\n", cfg.Logging.Level)
		fmt.Printf("    Directory:      %s\n", cfg.Logging.Directory)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.ExpandHome(config.DefaultPath)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Printf("Config written to %s\n", path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <DB> <ENV>",
	Short: "Check the connection parameters of an environment",
	Long: `Resolve the database and object store parameters of DB (ORACLE or
POSTGRES) in ENV from the environment, including secret references, and
report anything missing. Also reports whether another envsync process is
working in the data directory. No connection is made.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, env, err := parseTarget(args[0], args[1])
		if err != nil {
			return err
		}

		var problems []string
		params, err := config.DBParams(engine, env)
		if err == nil {
			err = params.Validate()
		}
		if err != nil {
			problems = append(problems, err.Error())
		} else {
			fmt.Printf("Database:     %s\n", params)
		}

		if status, err := lockStatus(layoutFor(engine, env).ExportDir()); err != nil {
			problems = append(problems, err.Error())
		} else {
			fmt.Printf("Data dir:     %s\n", status)
		}

		if env != config.EnvLocal {
			store, err := config.ObjectStoreParams(env)
			if err != nil {
				problems = append(problems, err.Error())
			} else {
				fmt.Printf("Object store: %s@%s/%s (secret %s)\n", store.User, store.Host, store.Bucket, maskSecret(store.Secret))
			}
		}

		if len(problems) > 0 {
			fmt.Println("Validation errors:")
			for _, p := range problems {
				fmt.Printf("  - %s\n", p)
			}
			return fmt.Errorf("%d validation error(s)", len(problems))
		}
		fmt.Println("Configuration is valid.")
		return nil
	},
}

// lockStatus describes dir and the process working in it, if any.
func lockStatus(dir string) (string, error) {
	held, pid, err := lock.IsHeld(dir)
	if err != nil {
		return "", fmt.Errorf("checking lock on %s: %w", dir, err)
	}
	if held {
		return fmt.Sprintf("%s (in use by PID %d)", dir, pid), nil
	}
	return dir, nil
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
