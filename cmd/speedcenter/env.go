package main

import (
	"context"
	"fmt"

	"github.com/ethpandaops/speedcenter/pkg/envinfo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Manage benchmark environments",
}

var envRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register this machine as an environment",
	Long: `Detects the CPU, memory, OS and kernel of this machine and stores them
as an environment, updating it when the name is already registered.`,
	RunE: runEnvRegister,
}

var (
	envName   string
	envMemory string
)

func init() {
	rootCmd.AddCommand(envCmd)
	envCmd.AddCommand(envRegisterCmd)
	envRegisterCmd.Flags().StringVar(&envName, "name", "",
		"Environment name (default: the hostname)")
	envRegisterCmd.Flags().StringVar(&envMemory, "memory", "",
		"Memory available to benchmarks, e.g. 16GiB (default: detected total)")
}

func runEnvRegister(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()

	info, err := envinfo.Detect(ctx)
	if err != nil {
		return fmt.Errorf("detecting host: %w", err)
	}

	if envMemory != "" {
		if err := info.SetMemory(envMemory); err != nil {
			return fmt.Errorf("invalid --memory: %w", err)
		}
	}

	env := info.Environment(envName)
	if env.Name == "" {
		return fmt.Errorf("environment name is required (use --name)")
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopStore(st)

	if err := st.UpsertEnvironment(ctx, env); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"id":     env.ID,
		"name":   env.Name,
		"cpu":    env.CPU,
		"memory": env.Memory,
		"os":     env.OS,
		"kernel": env.Kernel,
	}).Info("Environment registered")

	return nil
}
