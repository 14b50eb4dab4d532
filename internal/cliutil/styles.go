// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cliutil holds small lipgloss-based rendering helpers shared by
// durex-worker's subcommands.
package cliutil

import "github.com/charmbracelet/lipgloss"

var (
	statusOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	statusWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange
	statusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red

	// Muted styles secondary/less important text, such as a task's input
	// payload in ps output.
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	// Header styles a ps/signal command's section headers.
	Header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

const (
	symbolOK    = "✓"
	symbolWarn  = "⚠"
	symbolError = "✗"
)

// RenderOK renders a success message with a green checkmark.
func RenderOK(msg string) string { return statusOK.Render(symbolOK) + " " + msg }

// RenderWarn renders a warning message with an orange symbol.
func RenderWarn(msg string) string { return statusWarn.Render(symbolWarn) + " " + msg }

// RenderError renders a failure message with a red cross.
func RenderError(msg string) string { return statusError.Render(symbolError) + " " + msg }
