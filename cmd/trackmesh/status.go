package main

import (
	"fmt"
	"strconv"
	"time"

	"trackmesh/node"
	"trackmesh/pkg/catalog"
	"trackmesh/pkg/protocol"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	accentColor = lipgloss.Color("#50FA7B")
	mutedColor  = lipgloss.Color("#6272A4")
	headerColor = lipgloss.Color("#8BE9FD")
	dangerColor = lipgloss.Color("#FF5555")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(headerColor).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Bold(true)

	okStyle = lipgloss.NewStyle().
		Foreground(accentColor).
		Bold(true)

	downStyle = lipgloss.NewStyle().
			Foreground(dangerColor).
			Bold(true)

	tableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(headerColor).
				Padding(0, 1)

	tableRowStyle = lipgloss.NewStyle().
			Padding(0, 1)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

func renderStatus(s node.Status) string {
	state := okStyle.Render("running")
	if !s.Running {
		state = downStyle.Render("stopped")
	}

	rows := []string{
		labelStyle.Render("Peer ID") + valueStyle.Render(s.PeerID),
		labelStyle.Render("Address") + valueStyle.Render(s.Addr),
		labelStyle.Render("State") + state,
		labelStyle.Render("Uptime") + valueStyle.Render(s.Uptime.String()),
		labelStyle.Render("Tracks") + valueStyle.Render(strconv.Itoa(s.TrackCount)),
		labelStyle.Render("Peers") + valueStyle.Render(strconv.Itoa(s.PeerCount)),
		labelStyle.Render("Served") + valueStyle.Render(humanBytes(s.BytesServed)),
		labelStyle.Render("Fetched") + valueStyle.Render(humanBytes(s.BytesFetched)),
		labelStyle.Render("Requests") + valueStyle.Render(strconv.FormatInt(s.RequestsServed, 10)),
		labelStyle.Render("Handshakes") + valueStyle.Render(strconv.FormatInt(s.Discoveries, 10)),
	}

	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func renderTracks(tracks []catalog.Track) string {
	if len(tracks) == 0 {
		return mutedStyle.Render("No tracks in the local catalog.")
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(mutedColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableRowStyle
		}).
		Headers("TITLE", "ARTIST", "ALBUM", "SIZE", "HASH")

	for _, tr := range tracks {
		t.Row(tr.Title, tr.Artist, tr.Album, humanBytes(tr.Size), shortHash(tr.ContentHash))
	}
	return t.Render()
}

func renderPeers(infos []protocol.PeerInfo) string {
	if len(infos) == 0 {
		return mutedStyle.Render("No known peers.")
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(mutedColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableRowStyle
		}).
		Headers("PEER ID", "ADDRESS", "TRACKS", "LAST SEEN")

	for _, p := range infos {
		t.Row(
			shortHash(p.PeerID),
			fmt.Sprintf("%s:%d", p.Host, p.Port),
			strconv.Itoa(len(p.Tracks)),
			time.Unix(p.LastSeen, 0).Format("15:04:05"),
		)
	}
	return t.Render()
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12] + "…"
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1fGB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
