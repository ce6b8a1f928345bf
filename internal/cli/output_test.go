package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatterJSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(SeedReport{Users: 3, Connections: 2})
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatterJSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeDirectory, "open graph.db", map[string]string{"path": "graph.db"})
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeDirectory, resp.Error.Code)
	assert.Equal(t, "open graph.db", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatterTextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("3 suggestions")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "3 suggestions")
}

func TestOutputFormatterTextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeConfig, "config invalid", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E002]")
	assert.Contains(t, buf.String(), "config invalid")
}

func TestOutputFormatterTextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	err := formatter.Error(ErrCodeSeedFile, "bad record", map[string]string{"line": "12"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E005]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatterVerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			diag := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "text",
				Writer:    out,
				ErrWriter: diag,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Loading %s", "graph.yaml")

			// Diagnostics never land on the data writer.
			assert.Empty(t, out.String())
			if tt.wantLog {
				assert.Contains(t, diag.String(), "Loading graph.yaml")
			} else {
				assert.Empty(t, diag.String())
			}
		})
	}
}

func TestExitErrorCodes(t *testing.T) {
	plain := errors.New("boom")
	assert.Equal(t, ExitFailure, GetExitCode(plain))

	cmdErr := WrapExitError(ExitCommandError, "failed to open directory", plain)
	assert.Equal(t, ExitCommandError, GetExitCode(cmdErr))
	assert.Contains(t, cmdErr.Error(), "failed to open directory")
	assert.ErrorIs(t, cmdErr, plain)

	wrapped := fmt.Errorf("outer: %w", NewExitError(ExitFailure, "ranking failed"))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}
