package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-tavern/widget/internal/client/backend"
	"github.com/zhouzirui/z-tavern/widget/internal/config"
	"github.com/zhouzirui/z-tavern/widget/internal/format"
	model "github.com/zhouzirui/z-tavern/widget/internal/model/chat"
	"github.com/zhouzirui/z-tavern/widget/internal/service/chat"
	"github.com/zhouzirui/z-tavern/widget/internal/ui/tui"
	"github.com/zhouzirui/z-tavern/widget/pkg/logging"
)

type options struct {
	backendURL string
	timeout    time.Duration
	escape     string
	logLevel   string
	markup     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:          "chatcli",
		Short:        "Talk to the chat backend the way the widget does",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Setup(opts.logLevel, logging.FormatConsole)
		},
	}

	defaults, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("ignoring invalid environment configuration")
		defaults = &config.Config{Backend: config.BackendConfig{BaseURL: backend.DefaultBaseURL}}
		defaults.Format.Escape = string(format.EscapeHTML)
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.backendURL, "backend", defaults.Backend.BaseURL, "backend base URL")
	flags.DurationVar(&opts.timeout, "timeout", defaults.Backend.RequestTimeout, "per-exchange timeout (0 waits forever)")
	flags.StringVar(&opts.escape, "escape", defaults.Format.Escape, "raw HTML handling before formatting: html, strip or none")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(newSendCmd(opts), newTUICmd(opts, defaults.Widget.Welcome))
	return rootCmd
}

func newController(opts *options, extra ...chat.Option) (*chat.Controller, *backend.Client, error) {
	mode, err := format.ParseEscapeMode(opts.escape)
	if err != nil {
		return nil, nil, err
	}
	client := backend.New(opts.backendURL)
	chatOpts := append([]chat.Option{
		chat.WithRequestTimeout(opts.timeout),
		chat.WithFormatter(format.New(format.WithEscapeMode(mode))),
	}, extra...)
	return chat.New(client, chatOpts...), client, nil
}

func newSendCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <message>...",
		Short: "Send each argument as one message and print the replies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, err := newController(opts)
			if err != nil {
				return err
			}
			renderer := newRenderer(cmd.OutOrStdout())

			for _, text := range args {
				if err := ctrl.Submit(cmd.Context(), text); err != nil {
					if errors.Is(err, chat.ErrEmptyInput) {
						continue
					}
					return err
				}
				snap := ctrl.Snapshot()
				printReply(cmd.OutOrStdout(), snap, opts.markup, renderer)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.markup, "markup", false, "print the widget markup instead of terminal markdown")
	return cmd
}

func printReply(w io.Writer, snap model.Snapshot, markup bool, renderer *glamour.TermRenderer) {
	if len(snap.Messages) == 0 {
		return
	}
	last := snap.Messages[len(snap.Messages)-1]
	if markup {
		fmt.Fprintln(w, last.Markup)
		return
	}
	fmt.Fprintln(w, tui.RenderMarkdown(renderer, last.Content))
}

func newTUICmd(opts *options, welcome string) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Interactive chat in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, client, err := newController(opts, chat.WithWelcome(welcome))
			if err != nil {
				return err
			}
			m := tui.New(cmd.Context(), ctrl,
				tui.WithRenderer(newRenderer(cmd.OutOrStdout())),
				tui.WithHeader("backend: "+client.BaseURL()),
			)
			defer m.Close()

			_, err = tea.NewProgram(m, tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}

// newRenderer picks glamour's auto style on a terminal and plain output otherwise.
func newRenderer(w io.Writer) *glamour.TermRenderer {
	style := glamour.WithStandardStyle("notty")
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		style = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(100))
	if err != nil {
		log.Debug().Err(err).Msg("markdown renderer unavailable")
		return nil
	}
	return r
}
