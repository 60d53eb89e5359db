package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"dropletup/internal/provisioning"
	"dropletup/internal/state"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorYellow = lipgloss.Color("#eab308")
	colorRed    = lipgloss.Color("#ef4444")
	colorDim    = lipgloss.Color("#6b7280")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorGreen)

	warnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)

// renderResult formats the outcome of a successful provisioning run.
func renderResult(res *provisioning.Result) string {
	var b strings.Builder

	b.WriteString("\n")
	if !res.HasPublicIPv4 {
		b.WriteString(warnStyle.Render(fmt.Sprintf(
			"Droplet '%s' (ID %d) is active but has no public IPv4 address.", res.Spec.Name, res.InstanceID)))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(titleStyle.Render(fmt.Sprintf("Droplet '%s' created successfully", res.Spec.Name)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  ID:        %d\n", res.InstanceID)
	fmt.Fprintf(&b, "  Region:    %s\n", res.Spec.Region)
	fmt.Fprintf(&b, "  Public IP: %s\n", res.PublicIPv4)
	b.WriteString(dimStyle.Render(fmt.Sprintf("  Connect with: ssh root@%s", res.PublicIPv4)))
	b.WriteString("\n")
	return b.String()
}

// renderFailureHint reminds the user that a droplet may still be billed.
func renderFailureHint(id int) string {
	return errorStyle.Render(fmt.Sprintf(
		"Droplet %d was created but did not become ready. Remove it with: dropletup delete %d", id, id))
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		Headers(headers...)
}

func ledgerTable(records []state.DropletRecord, live map[int]string) *table.Table {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		status := rec.Status
		if s, ok := live[rec.ID]; ok {
			status = s
		}
		if rec.Deleted() {
			status = "deleted"
		}
		rows = append(rows, []string{
			strconv.Itoa(rec.ID),
			rec.Name,
			rec.Region,
			rec.Size,
			orDash(rec.PublicIPv4),
			status,
			formatTime(rec.CreatedAt),
		})
	}
	return newTable("ID", "Name", "Region", "Size", "Public IP", "Status", "Created").Rows(rows...)
}

func keysTable(keys []provisioning.SSHKey) *table.Table {
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{strconv.Itoa(k.ID), k.Name, k.Fingerprint})
	}
	return newTable("ID", "Name", "Fingerprint").Rows(rows...)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
