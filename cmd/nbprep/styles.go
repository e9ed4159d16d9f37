package main

import "github.com/charmbracelet/lipgloss"

var (
	headingStyle    = lipgloss.NewStyle().Bold(true)
	subheadingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	okStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle        = lipgloss.NewStyle().Faint(true)
	titleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)
