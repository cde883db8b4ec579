package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/sencol/hub/internal/viewer/app"
	"github.com/sencol/hub/internal/viewer/client"
)

func main() {
	wsURL := pflag.String("url", "ws://127.0.0.1:8080/ws", "live feed URL of the hub")
	subject := pflag.StringP("subject", "s", "", "subject id sent with LOG")
	name := pflag.StringP("name", "n", "", "test name sent with LOG (default numbers trials T1, T2, ...)")
	history := pflag.Int("history", 200, "samples kept per channel")
	pflag.Parse()

	ws := client.NewWSClient(*wsURL)
	httpClient := client.NewHTTPClient(client.HTTPBase(*wsURL))

	m := app.New(ws, httpClient, app.Options{Subject: *subject, Name: *name, History: *history})
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
