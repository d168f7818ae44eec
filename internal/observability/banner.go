package observability

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rahul/stepwise/internal/plan"
	"golang.org/x/term"
)

const (
	colorReset    = "\033[0m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

var radarFrames = []string{"◜", "◝", "◞", "◟"}

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func PrintBanner(w io.Writer) {
	banner := `
   _____ _______ ______ _______          _______  _____ ______
  / ____|__   __|  ____|  __ \ \        / /_   _|/ ____|  ____|
 | (___    | |  | |__  | |__) \ \  /\  / /  | | | (___ | |__
  \___ \   | |  |  __| |  ___/ \ \/  \/ /   | |  \___ \|  __|
  ____) |  | |  | |____| |      \  /\  /   _| |_ ____) | |____
 |_____/   |_|  |______|_|       \/  \/   |_____|_____/|______|

        >> DEPENDENCY-AWARE AGENT WORKFLOWS <<
`

	width := termWidth()
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Fprintf(w, "%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan+l, colorReset)
	}
}

// StatusLine renders a one-line summary of a status snapshot.
func StatusLine(snap StatusSnapshot) string {
	roleColor := colorReset
	switch snap.Role {
	case RoleRunning:
		roleColor = colorNeonCyan
	case RoleRevising:
		roleColor = colorNeonMag
	}

	radar := " "
	if snap.Role != RoleIdle {
		radar = radarFrames[snap.Wave%len(radarFrames)]
	}

	task := snap.Task
	if task == "" {
		task = "Waiting..."
	}
	if r := []rune(task); len(r) > 25 {
		task = string(r[:22]) + "..."
	}

	return fmt.Sprintf("[%s] %s%-8s%s %s%s%s wave=%d done=%d running=%d pending=%d failed=%d | %s",
		snap.LastUpdate.Format("15:04:05"),
		roleColor, snap.Role, colorReset,
		colorPurple, radar, colorReset,
		snap.Wave,
		snap.Counts[plan.StatusCompleted],
		snap.Counts[plan.StatusInProgress],
		snap.Counts[plan.StatusPending],
		snap.Counts[plan.StatusFailed],
		task,
	)
}
