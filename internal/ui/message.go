package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/vsa/internal/session"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgSnapshot MsgKind = iota
	MsgUpdatesClosed
	MsgCommandFailed
)

// snapshotMsg is the constructor for [MsgSnapshot]
func snapshotMsg(snap session.Snapshot) Msg {
	return Msg{kind: MsgSnapshot, data: snap}
}

// updatesClosedMsg is the constructor for [MsgUpdatesClosed]
func updatesClosedMsg() Msg {
	return Msg{kind: MsgUpdatesClosed}
}

// commandFailedMsg is the constructor for [MsgCommandFailed]
func commandFailedMsg(err error) Msg {
	return Msg{kind: MsgCommandFailed, data: err}
}
