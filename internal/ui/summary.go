package ui

import (
	"fmt"
	"strings"
	"time"
)

// StatusCard holds data for the license status summary.
type StatusCard struct {
	Label           string
	Valid           bool
	Tier            string
	Email           string
	Key             string
	Machines        string
	MachineName     string
	CacheValidUntil *time.Time
	TrialEndsAt     *time.Time
	Warning         string
	Hint            string
}

// PrintStatusCard displays the license status summary.
func (u *UI) PrintStatusCard(c *StatusCard) {
	divider := strings.Repeat("═", 54)
	accent := colorGreen + colorBold
	if !c.Valid {
		accent = colorRed + colorBold
	}

	fmt.Fprintln(u.out)
	fmt.Fprintln(u.out, u.colorize(accent, divider))
	fmt.Fprintln(u.out, u.colorize(accent, "  License: "+c.Label))
	fmt.Fprintln(u.out, u.colorize(accent, divider))
	fmt.Fprintln(u.out)

	u.row("Tier:", c.Tier)
	u.row("Email:", c.Email)
	u.row("Key:", c.Key)
	u.row("Machines:", c.Machines)
	u.row("This machine:", c.MachineName)
	if c.TrialEndsAt != nil {
		u.row("Trial ends:", c.TrialEndsAt.Local().Format(time.RFC1123))
	}
	if c.CacheValidUntil != nil {
		u.row("Offline until:", c.CacheValidUntil.Local().Format(time.RFC1123))
	}
	fmt.Fprintln(u.out)

	if c.Warning != "" {
		fmt.Fprintf(u.out, "  %s %s\n\n", u.colorize(colorYellow+colorBold, "Warning:"), c.Warning)
	}
	if c.Hint != "" {
		fmt.Fprintf(u.out, "  %s %s\n\n", u.colorize(colorYellow+colorBold, "Tip:"), c.Hint)
	}
	fmt.Fprintln(u.out, u.colorize(accent, divider))
	fmt.Fprintln(u.out)
}

func (u *UI) row(label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(u.out, "  %s %s\n", u.Bold(fmt.Sprintf("%-15s", label)), value)
}
