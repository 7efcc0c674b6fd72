package directive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUser(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
		kind  Kind
		args  []string
	}{
		{
			name:  "launch with arguments",
			input: "launch_program notepad file.txt",
			ok:    true,
			kind:  KindLaunchProgram,
			args:  []string{"notepad", "file.txt"},
		},
		{
			name:  "launch without arguments",
			input: "launch_program notepad",
			ok:    true,
			kind:  KindLaunchProgram,
			args:  []string{"notepad", ""},
		},
		{
			name:  "launch keeps argument spacing",
			input: "launch_program  vim   -O a.txt  b.txt\r\n",
			ok:    true,
			kind:  KindLaunchProgram,
			args:  []string{"vim", "-O a.txt  b.txt"},
		},
		{
			name:  "launch arguments stop at end of line",
			input: "launch_program ls -la\nand then something else",
			ok:    true,
			kind:  KindLaunchProgram,
			args:  []string{"ls", "-la"},
		},
		{
			name:  "launch without program is dialogue",
			input: "launch_program",
			ok:    false,
		},
		{
			name:  "launch with only whitespace is dialogue",
			input: "launch_program   \n",
			ok:    false,
		},
		{
			name:  "launch keyword glued to word is dialogue",
			input: "launch_programs are neat",
			ok:    false,
		},
		{
			name:  "launch mid sentence is dialogue",
			input: "please launch_program notepad",
			ok:    false,
		},
		{
			name:  "case sensitive",
			input: "Launch_Program notepad",
			ok:    false,
		},
		{
			name:  "file modified",
			input: "file modified.",
			ok:    true,
			kind:  KindProgramUpdate,
			args:  []string{"file modified."},
		},
		{
			name:  "program terminated with trailing newline",
			input: "program terminated.\n",
			ok:    true,
			kind:  KindProgramUpdate,
			args:  []string{"program terminated."},
		},
		{
			name:  "update literal must be exact",
			input: "the file modified.",
			ok:    false,
		},
		{
			name:  "sandbox",
			input: "run_code_in_virtual_env [] print(1)",
			ok:    true,
			kind:  KindRunSandboxedCode,
			args:  []string{"run_code_in_virtual_env [] print(1)"},
		},
		{
			name:  "sandbox keeps multiline code",
			input: "run_code_in_virtual_env [requests] import requests\nprint(requests.__version__)\n",
			ok:    true,
			kind:  KindRunSandboxedCode,
			args:  []string{"run_code_in_virtual_env [requests] import requests\nprint(requests.__version__)"},
		},
		{
			name:  "scrape",
			input: "scrape_website example.com /docs",
			ok:    true,
			kind:  KindScrapeWebsite,
			args:  []string{"scrape_website example.com /docs"},
		},
		{
			name:  "scrape without domain still routed",
			input: "scrape_website",
			ok:    true,
			kind:  KindScrapeWebsite,
			args:  []string{"scrape_website"},
		},
		{
			name:  "plain dialogue",
			input: "hello there",
			ok:    false,
		},
		{
			name:  "empty",
			input: "",
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := ParseUser(tt.input)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.kind, d.Kind)
			assert.Equal(t, tt.args, d.Args)
			assert.Equal(t, tt.input, d.Raw)
		})
	}
}

func TestParseAssistant(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
		kind  Kind
		args  []string
	}{
		{
			name:  "launch embedded in prose",
			input: "Sure! You can type launch_program calc to open the calculator.",
			ok:    true,
			kind:  KindLaunchProgram,
			args:  []string{"calc", "to open the calculator."},
		},
		{
			name:  "launch at start of later line",
			input: "Here you go:\nlaunch_program notepad notes.txt\nEnjoy.",
			ok:    true,
			kind:  KindLaunchProgram,
			args:  []string{"notepad", "notes.txt"},
		},
		{
			name:  "launch keyword alone in prose",
			input: "I cannot use launch_program right now",
			ok:    true,
			kind:  KindLaunchProgram,
			args:  []string{"right", "now"},
		},
		{
			name:  "launch keyword at end is not a directive",
			input: "The command is called launch_program",
			ok:    false,
		},
		{
			name:  "launch inside identifier is not a directive",
			input: "call my_launch_program helper",
			ok:    false,
		},
		{
			name:  "sandbox embedded",
			input: "Let me check: run_code_in_virtual_env [] print(2+2)",
			ok:    true,
			kind:  KindRunSandboxedCode,
			args:  []string{"run_code_in_virtual_env [] print(2+2)"},
		},
		{
			name:  "scrape embedded stops at line end",
			input: "Try scrape_website example.com\nand read the links.",
			ok:    true,
			kind:  KindScrapeWebsite,
			args:  []string{"scrape_website example.com"},
		},
		{
			name:  "earliest keyword wins",
			input: "First scrape_website a.com then launch_program b",
			ok:    true,
			kind:  KindScrapeWebsite,
			args:  []string{"scrape_website a.com then launch_program b"},
		},
		{
			name:  "update literal",
			input: "program terminated.",
			ok:    true,
			kind:  KindProgramUpdate,
			args:  []string{"program terminated."},
		},
		{
			name:  "plain prose",
			input: "Hello! How can I help you today?",
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := ParseAssistant(tt.input)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.kind, d.Kind)
			assert.Equal(t, tt.args, d.Args)
		})
	}
}

func TestDirectiveAccessors(t *testing.T) {
	launch, ok := ParseUser("launch_program notepad file.txt")
	require.True(t, ok)
	assert.Equal(t, "notepad", launch.Program())
	assert.Equal(t, "file.txt", launch.Arguments())
	assert.Empty(t, launch.Command())

	update, ok := ParseUser("file modified.")
	require.True(t, ok)
	assert.Equal(t, "file modified.", update.Command())
	assert.Empty(t, update.Program())
	assert.Empty(t, update.Arguments())

	var zero Directive
	assert.Empty(t, zero.Program())
	assert.Empty(t, zero.Command())
}
