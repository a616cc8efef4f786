package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"pdfchat/internal/logging"
	"pdfchat/internal/session"
	"pdfchat/internal/tui"
)

func newChatCmd(g *globalFlags) *cobra.Command {
	var logFile string
	cmd := &cobra.Command{
		Use:   "chat <file.pdf>",
		Short: "Chat with a PDF in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, g, args[0], logFile)
		},
	}
	cmd.Flags().StringVar(&logFile, "log-file", "pdfchat.log", "log file (the terminal is reserved for the UI)")
	return cmd
}

func runChat(cmd *cobra.Command, g *globalFlags, path, logFile string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	if cfg.Log.File == "" {
		cfg.Log.File = logFile
	}
	log, err := logging.New(cfg.Log, logging.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	sess := session.New(session.NewID(), a.indexer, a.qa, cfg.Chat.SystemPrompt, log)
	sess.InitializeSession()
	defer sess.Close(context.Background())

	name := filepath.Base(path)
	fmt.Fprintf(cmd.OutOrStdout(), "Indexing %s...\n", name)
	if err := sess.LoadDocument(ctx, name, data); err != nil {
		return err
	}

	m := tui.New(ctx, sess, tui.Options{Title: "PDF Chat", AnswerSuffix: cfg.Chat.AnswerSuffix})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}
