// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI renders the live session with three main views beside an analysis sidebar:
//  1. [session.ViewForm] : Submit a video URL for analysis
//  2. [session.ViewProcessing] : Follow the step log of the in-flight run
//  3. [session.ViewResults] : Read the transcription and per-category sentiment breakdowns
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Session snapshots flow through [session.Session.Updates]; the model never derives state on its own, it renders whatever
// the latest snapshot says and forwards user intents to the dispatcher.
//
// Keyboard navigation uses vim-style bindings (j/k, tab, enter, esc, n, r, q) with contextual help displayed via
// charmbracelet/bubbles/help.
package ui
