package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/becomeliminal/recall/config"
	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/engine"
	"github.com/becomeliminal/recall/memory"
)

var (
	promptColor  = color.New(color.FgGreen, color.Bold)
	botColor     = color.New(color.FgCyan)
	contextColor = color.New(color.FgHiBlack)
	errorColor   = color.New(color.FgRed)
)

func newChatCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with recall in the terminal",
		Long:  "Start an interactive session. Type exit or quit to leave; everything you say is remembered.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, v)
		},
	}

	cmd.Flags().String("user", "", "user id for this session (default default_user)")
	cmd.Flags().Bool("show-context", true, "print the memories recalled for each answer")
	_ = v.BindPFlag("memory.show_context", cmd.Flags().Lookup("show-context"))

	return cmd
}

func runChat(cmd *cobra.Command, v *viper.Viper) error {
	quietLogs(v)

	cfg, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := cmd.Context()
	st, err := buildStack(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("starting memory pipeline: %w", err)
	}
	defer st.Close()

	user, _ := cmd.Flags().GetString("user")
	c := &chatLoop{
		engine:      engine.New(st.pipeline),
		in:          cmd.InOrStdin(),
		out:         cmd.OutOrStdout(),
		userID:      user,
		showContext: cfg.Memory.ShowContext,
	}
	return c.run(ctx)
}

// chatLoop reads one message per line and answers it.
type chatLoop struct {
	engine      *engine.Engine
	in          io.Reader
	out         io.Writer
	userID      string
	showContext bool
}

func (c *chatLoop) run(ctx context.Context) error {
	fmt.Fprintln(c.out, "=============================================================")
	fmt.Fprintln(c.out, "  recall: a chatbot that remembers")
	fmt.Fprintln(c.out, "=============================================================")
	if n, err := c.engine.Count(ctx); err == nil {
		fmt.Fprintf(c.out, "%d memories stored. Type 'exit' or 'quit' to leave.\n\n", n)
	}

	scanner := bufio.NewScanner(c.in)
	turn := 1
	for {
		promptColor.Fprintf(c.out, "You (Turn %d): ", turn)
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			break
		}

		out, err := c.engine.Turn(ctx, &core.Input{UserID: c.userID, Message: line, Turn: turn})
		turn++
		if out == nil {
			errorColor.Fprintf(c.out, "Error: %v\n", err)
			continue
		}

		if c.showContext {
			contextColor.Fprintf(c.out, "[recalled] %s\n", indent(memory.DisplayContext(out.MemoryContext)))
		}
		botColor.Fprintf(c.out, "Bot: %s\n\n", out.Answer)
		if err != nil {
			errorColor.Fprintf(c.out, "(%v)\n\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	fmt.Fprintln(c.out, "Saving memories... Goodbye!")
	return nil
}

func indent(s string) string {
	return strings.ReplaceAll(s, "\n", "\n           ")
}
