package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/findtune/internal/client"
	"github.com/desertthunder/findtune/internal/shared"
	"github.com/desertthunder/findtune/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal player.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := r.newPlayerSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	go s.run(ctx)

	model := ui.NewModel(ctx, ui.Options{
		Player:   s.orch,
		Library:  client.NewLibrary(s.client),
		Playlist: r.config.Player.PlaylistName,
		Logger:   r.logger,
	})
	p := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
