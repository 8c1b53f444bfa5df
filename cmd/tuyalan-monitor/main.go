// Command tuyalan-monitor renders a live dashboard of data-point updates
// fanned out by a running "tuyalan monitor" server.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/tuyalan/internal/monitortui"
)

func main() {
	addr := flag.String("addr", "localhost:8090", "host:port of the tuyalan monitor server")
	flag.Parse()

	wsURL := fmt.Sprintf("ws://%s/ws", *addr)
	model, err := monitortui.New(wsURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tuyalan-monitor:", err)
		os.Exit(1)
	}

	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "tuyalan-monitor:", err)
		os.Exit(1)
	}
}
