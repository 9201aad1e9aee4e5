package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"fintrack/internal/store"
)

var chatUserID int64

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the tracker from the terminal",
	Long: `Starts an interactive session. Type a request in plain English,
"/reset" to clear the conversation, or "exit" to leave.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().Int64Var(&chatUserID, "user", 1, "user id to act as")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	st, err := store.Open(cfg.Database.DSN, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	agent, err := buildAgent(cfg, st, log)
	if err != nil {
		return err
	}

	pterm.DefaultHeader.Println("fintrack")
	pterm.Info.Println("Ask about your money or record a transaction. Type 'exit' to leave.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		pterm.FgCyan.Print("you> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "exit", line == "quit":
			pterm.Info.Println("Bye.")
			return nil
		case line == "/reset":
			resp := agent.Reset(cmd.Context(), chatUserID)
			pterm.Success.Println(resp.Response)
			continue
		}

		resp := agent.Handle(cmd.Context(), line, chatUserID)
		if resp.Success {
			pterm.Success.Println(resp.Response)
		} else {
			pterm.Warning.Println(resp.Response)
		}
		if resp.Data != nil && len(resp.Data.Rows) > 0 {
			table := pterm.TableData{resp.Data.Columns}
			for _, row := range resp.Data.Rows {
				table = append(table, row)
			}
			if err := pterm.DefaultTable.WithHasHeader().WithData(table).Render(); err != nil {
				pterm.Warning.Println("could not render table")
			}
		}
	}
	return scanner.Err()
}
