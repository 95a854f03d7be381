// Command omnish-commands lists recorded commands across sessions: by
// default only "leaf" sessions (those never attached to as a parent, so
// nested omnish instances don't double-report), sessions newest-started
// first and each session's commands newest first.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/omnish-sh/omnish/internal/config"
	"github.com/omnish-sh/omnish/internal/session"
	"github.com/omnish-sh/omnish/internal/store"
	"github.com/spf13/cobra"
)

func main() {
	var limit int
	var sidPrefix string
	var all bool

	root := &cobra.Command{
		Use:   "omnish-commands",
		Short: "list recorded commands across sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionsDir, err := config.SessionsDir()
			if err != nil {
				return err
			}
			mgr, err := session.NewManager(sessionsDir)
			if err != nil {
				return err
			}
			return run(mgr, os.Stdout, limit, sidPrefix, all)
		},
	}
	root.Flags().IntVarP(&limit, "number", "n", 20, "maximum number of commands to show")
	root.Flags().StringVarP(&sidPrefix, "session", "s", "", "only show commands from sessions whose id has this prefix")
	root.Flags().BoolVar(&all, "all", false, "include non-leaf sessions (nested omnish instances)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(mgr *session.Manager, out io.Writer, limit int, sidPrefix string, all bool) error {
	summaries, err := mgr.AllSessionMetas()
	if err != nil {
		return err
	}

	var leaves map[string]bool
	if !all {
		ids, err := mgr.ListLeafSessions()
		if err != nil {
			return err
		}
		leaves = make(map[string]bool, len(ids))
		for _, id := range ids {
			leaves[id] = true
		}
	}

	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "SESSION\tSTARTED\tEXIT\tCOMMAND")

	shown := 0
	for _, s := range summaries {
		if !all && !leaves[s.Meta.SessionID] {
			continue
		}
		if sidPrefix != "" && !strings.HasPrefix(s.Meta.SessionID, sidPrefix) {
			continue
		}
		records, err := store.LoadAllCommands(s.Dir)
		if err != nil {
			continue
		}
		for i := len(records) - 1; i >= 0 && shown < limit; i-- {
			rec := records[i]
			exit := "-"
			if rec.HasExitCode {
				exit = fmt.Sprintf("%d", rec.ExitCode)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				shortID(s.Meta.SessionID),
				formatTime(rec.StartedAtMs),
				exit,
				oneLine(rec.CommandLine),
			)
			shown++
		}
		if shown >= limit {
			break
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func formatTime(ms uint64) string {
	return time.UnixMilli(int64(ms)).Local().Format("01-02 15:04:05")
}

func oneLine(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", "\\n")
}
