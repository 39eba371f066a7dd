package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/auth"
	"quiz-proctor-service/internal/config"
	"quiz-proctor-service/internal/logger"
)

// NewReleaseCmd releases every pending score after checking the instructor
// passcode.
func NewReleaseCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "release",
		Short: "Release all pending quiz scores",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelease(cmd.Context(), *configPath, cmd.OutOrStdout())
		},
	}
}

func runRelease(ctx context.Context, configPath string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)

	authenticator, err := auth.New(
		cfg.Instructor.Passcode,
		cfg.Instructor.PasscodeHash,
		cfg.Instructor.TokenSecret,
		config.TTLDuration(cfg.Instructor.TokenTTL, 8*time.Hour),
	)
	if err != nil {
		return err
	}
	passcode, err := readPasscode(out, "Instructor passcode: ")
	if err != nil {
		return err
	}
	if err := authenticator.CheckPasscode(passcode); err != nil {
		return err
	}

	res := newBackends(cfg, log)
	defer res.Close()
	store, err := res.Store(ctx)
	if err != nil {
		return err
	}

	n, err := app.NewReleaseService(store, log).ReleaseAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "released %d submission(s)\n", n)
	return nil
}

// NewHashPasscodeCmd prints a bcrypt hash for instructor.passcode_hash.
func NewHashPasscodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-passcode",
		Short: "Hash an instructor passcode for the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			passcode, err := readPasscode(cmd.OutOrStdout(), "Passcode: ")
			if err != nil {
				return err
			}
			if len(passcode) < 4 {
				return errors.New("passcode must be at least 4 characters")
			}
			hash, err := auth.HashPasscode(passcode)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// readPasscode prompts without echo on a terminal and reads one line otherwise.
func readPasscode(out io.Writer, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
	fmt.Fprint(out, prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read passcode: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
