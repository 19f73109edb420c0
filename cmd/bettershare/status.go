package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"better-share/pkg/logger"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	columnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

// statusEntry 是status --json的输出，不包含密钥
type statusEntry struct {
	SessionID string `json:"sessionId"`
	ShareID   string `json:"shareId"`
	Title     string `json:"title,omitempty"`
	URL       string `json:"url"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

func newStatusCmd(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List shared sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, sessions, err := opts.newManager()
			if err != nil {
				return err
			}
			defer m.Close()

			// 标题只是展示用，读不到本地会话时留空
			titles := make(map[string]string)
			refs, err := sessions.ListSessions()
			if err != nil {
				logger.L.Warn("Failed to list local sessions", zap.Error(err))
			}
			for _, ref := range refs {
				titles[ref.Session.ID] = ref.Session.Title
			}

			records := m.Shares()
			entries := make([]statusEntry, 0, len(records))
			for _, r := range records {
				entries = append(entries, statusEntry{
					SessionID: r.SessionID,
					ShareID:   r.ShareID,
					Title:     titles[r.SessionID],
					URL:       r.URL,
					CreatedAt: r.CreatedAt,
					UpdatedAt: r.UpdatedAt,
				})
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			renderStatus(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print shares as JSON")
	return cmd
}

func renderStatus(out io.Writer, entries []statusEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, headerStyle.Render("No shared sessions"))
		return
	}
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d shared session(s)", len(entries))))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, strings.Join([]string{
		columnStyle.Render("Session"),
		columnStyle.Render("Title"),
		columnStyle.Render("URL"),
		columnStyle.Render("Synced"),
	}, "\t"))

	for _, e := range entries {
		title := e.Title
		if title == "" {
			title = "Untitled"
		}
		if len(title) > 40 {
			title = title[:37] + "..."
		}
		fmt.Fprintln(w, strings.Join([]string{
			idStyle.Render(e.SessionID),
			title,
			e.URL,
			dateStyle.Render(humanize.Time(time.UnixMilli(e.UpdatedAt))),
		}, "\t"))
	}
	_ = w.Flush()
}
