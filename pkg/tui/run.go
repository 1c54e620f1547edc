package tui

import (
	"context"
	"errors"

	"Sherpa/pkg/types"

	tea "github.com/charmbracelet/bubbletea"
)

// Source is the part of the device monitor the view needs
type Source interface {
	Current() types.ConnectedDevicesSnapshot
	OnChanged(fn func(types.ConnectedDevicesSnapshot)) func()
}

// Run shows the device view until the user quits or ctx is cancelled
func Run(ctx context.Context, src Source, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(NewModel(src.Current()), opts...)

	unsubscribe := src.OnChanged(func(s types.ConnectedDevicesSnapshot) {
		p.Send(SnapshotMsg(s))
	})
	defer unsubscribe()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
