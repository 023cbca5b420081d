package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/daap14/hafgate/internal/auth"
)

var rootCmd = &cobra.Command{
	Use:   "hashkey",
	Short: "Manage the admin key for hafgate's credential endpoint",
	Long: `hashkey issues admin keys and prints the bcrypt hash to put in
ADMIN_API_KEY_HASH. The raw key is only ever printed once.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Int("cost", bcrypt.DefaultCost, "bcrypt cost")

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new random admin key and its hash",
		Args:  cobra.NoArgs,
		RunE:  runGenerate,
	}
	rootCmd.AddCommand(generateCmd)

	hashCmd := &cobra.Command{
		Use:   "hash",
		Short: "Hash an existing key read from stdin",
		Args:  cobra.NoArgs,
		RunE:  runHash,
	}
	rootCmd.AddCommand(hashCmd)

	verifyCmd := &cobra.Command{
		Use:   "verify <hash>",
		Short: "Check a key read from stdin against a hash",
		Args:  cobra.ExactArgs(1),
		RunE:  runVerify,
	}
	rootCmd.AddCommand(verifyCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	cost, _ := cmd.Flags().GetInt("cost")

	rawKey, hash, err := auth.GenerateKey(cost)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "key:  %s\n", rawKey)
	fmt.Fprintf(out, "hash: %s\n", hash)
	return nil
}

func runHash(cmd *cobra.Command, _ []string) error {
	cost, _ := cmd.Flags().GetInt("cost")

	key, err := readKey(cmd)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return fmt.Errorf("hashing key: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(hash))
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	key, err := readKey(cmd)
	if err != nil {
		return err
	}

	svc, err := auth.NewService(args[0])
	if err != nil {
		return err
	}
	if err := svc.Authenticate(key); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

func readKey(cmd *cobra.Command) (string, error) {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading key from stdin: %w", err)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return "", fmt.Errorf("empty key")
	}
	return key, nil
}
