package tui

import (
	"context"
	"slices"
	"strings"

	"github.com/fornellas/slogxt/log"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Sender is the part of *bridge.Bridge used to send typed commands.
type Sender interface {
	SendWait(ctx context.Context, command string) error
}

type CommandPrimitive struct {
	*tview.InputField
	history []string
}

func NewCommandPrimitive(ctx context.Context, sender Sender) *CommandPrimitive {
	cp := &CommandPrimitive{}
	inputField := tview.NewInputField()
	inputField.SetLabel("Command: ")
	inputField.SetBorder(true)
	inputField.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		command := strings.TrimSpace(inputField.GetText())
		if command == "" {
			return
		}
		inputField.SetText("")
		cp.history = append(cp.history, command)
		go func() {
			logger := log.MustLogger(ctx)
			logger.Info(command)
			if err := sender.SendWait(ctx, command); err != nil {
				logger.Error("Command failed", "err", err)
			}
		}()
	})
	inputField.SetAutocompleteFunc(func(currentText string) []string {
		if currentText == "" {
			return nil
		}
		var entries []string
		for i := len(cp.history) - 1; i >= 0; i-- {
			entry := cp.history[i]
			if strings.HasPrefix(entry, currentText) && entry != currentText && !slices.Contains(entries, entry) {
				entries = append(entries, entry)
			}
		}
		return entries
	})
	cp.InputField = inputField
	return cp
}
