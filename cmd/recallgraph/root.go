package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/lithammer/shortuuid/v4"
	"github.com/spf13/cobra"

	"github.com/hupe1980/recallgraph/engine"
	"github.com/hupe1980/recallgraph/model"
	"github.com/hupe1980/recallgraph/server"
)

const defaultUserID = "123456"

type rootFlags struct {
	configFile string
	userID     string
	mcpServer  string
}

func newRootCmd(d deps) *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "recallgraph",
		Short:         "Conversational agent with long-term memory and MCP tools",
		Long:          "recallgraph answers in threads, compacts long conversations into a running summary, calls tools and remembers their results per user.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	userDefault := os.Getenv("DEMO_USER_ID")
	if userDefault == "" {
		userDefault = defaultUserID
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "config file (default: config.yaml in the working directory or its parent)")
	pf.StringVar(&flags.userID, "user", userDefault, "user id memories are scoped to (env DEMO_USER_ID)")
	pf.StringVar(&flags.mcpServer, "mcp-server", "", "connect only this server from mcp_clients")

	rootCmd.AddCommand(
		newChatCmd(d, flags),
		newAskCmd(d, flags),
		newServeCmd(d, flags),
		newGraphCmd(),
	)

	return rootCmd
}

func newThreadID() string {
	return "thread_" + shortuuid.New()
}

func newChatCmd(d deps, flags *rootFlags) *cobra.Command {
	var (
		threadID string
		stream   bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive console session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if threadID == "" {
				threadID = newThreadID()
			}

			opts := wireOptions{configFile: flags.configFile, mcpServer: flags.mcpServer}
			if stream {
				opts.onPartial = func(r model.Response) { fmt.Fprint(out, r.Text) }
			}
			a, err := wireApp(cmd.Context(), d, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintln(out, "Console Agent ready. Type 'quit' to exit.")
			fmt.Fprintf(out, "Running with user_id: %s and thread_id: %s\n", flags.userID, threadID)

			return chatLoop(cmd.Context(), cmd, a.engine, bufio.NewScanner(d.stdin), threadID, flags.userID, stream)
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "resume an existing thread instead of starting a new one")
	cmd.Flags().BoolVar(&stream, "stream", false, "print the answer while it is generated")
	return cmd
}

func chatLoop(ctx context.Context, cmd *cobra.Command, eng *engine.Engine, in *bufio.Scanner, threadID, userID string, stream bool) error {
	out := cmd.OutOrStdout()
	for {
		fmt.Fprint(out, "User: ")
		if !in.Scan() || ctx.Err() != nil {
			fmt.Fprintln(out, "\nGoodbye!")
			return in.Err()
		}

		text := strings.TrimSpace(in.Text())
		switch strings.ToLower(text) {
		case "":
			continue
		case "q", "quit", "exit":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}

		if stream {
			fmt.Fprint(out, "AI: ")
		}
		answer, err := eng.SubmitTurn(ctx, threadID, userID, text)
		if err != nil {
			// resubmitting the same text resumes the failed turn
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			continue
		}
		if stream {
			fmt.Fprintln(out)
			continue
		}
		fmt.Fprintf(out, "AI: %s\n", answer)
	}
}

func newAskCmd(d deps, flags *rootFlags) *cobra.Command {
	var threadID string

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Submit a single turn and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wireApp(cmd.Context(), d, wireOptions{configFile: flags.configFile, mcpServer: flags.mcpServer})
			if err != nil {
				return err
			}
			defer a.Close()

			answer, err := a.engine.SubmitTurn(cmd.Context(), threadID, flags.userID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), answer)
			return err
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "thread to continue")
	_ = cmd.MarkFlagRequired("thread")
	return cmd
}

func newServeCmd(d deps, flags *rootFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the thread API over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(cmd.Context(), d, wireOptions{configFile: flags.configFile, mcpServer: flags.mcpServer})
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			h := server.NewHandler(a.engine, func(o *server.Options) { o.Logger = a.logger.WithComponent("server") })
			return server.ListenAndServe(cmd.Context(), addr, h.Routes(), a.logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr from config)")
	return cmd
}

func newGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the turn state machine as a Mermaid flowchart",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), engine.Mermaid())
			return err
		},
	}
}
