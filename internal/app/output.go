package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrSnakeDoc/mlvd/internal/domain"
)

const rowFormat = "%-8s %-15s %-12s %6s %s"

func (a *App) printRelays(relays []domain.Relay) error {
	header := lipgloss.NewRenderer(a.stdout).NewStyle().Bold(true)
	if _, err := fmt.Fprintln(a.stdout, header.Render(row("Location", "Hostname", "Provider", "Weight", "Inactive"))); err != nil {
		return err
	}
	for _, r := range relays {
		inactive := ""
		if !r.Active {
			inactive = "INACTIVE"
		}
		if _, err := fmt.Fprintln(a.stdout, row(r.Location, r.Hostname, r.Provider, fmt.Sprint(r.Weight), inactive)); err != nil {
			return err
		}
	}
	return nil
}

func row(location, hostname, provider, weight, inactive string) string {
	return strings.TrimRight(fmt.Sprintf(rowFormat, location, hostname, provider, weight, inactive), " ")
}

// describe renders "hostname (location), hosted by provider" with the
// relay fields highlighted when stderr is a terminal.
func (a *App) describe(r domain.Relay) string {
	hl := lipgloss.NewRenderer(a.stderr).NewStyle().Bold(true).Foreground(lipgloss.Color("5"))
	return fmt.Sprintf("%s (%s), hosted by %s", hl.Render(r.Hostname), hl.Render(r.Location), hl.Render(r.Provider))
}
