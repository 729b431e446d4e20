package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nostrstore/nostrstore/internal/engine"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("NOT_FOUND", "event not found", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "event not found", resp.Error.Message)
}

type fixedText string

func (s fixedText) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "<%s>\n", string(s))
	return err
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	require.NoError(t, formatter.Success("plain value"))
	require.NoError(t, formatter.Success(fixedText("rendered")))
	assert.Equal(t, "plain value\n<rendered>\n", buf.String())
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:    "text",
		Writer:    buf,
		ErrWriter: errBuf,
		Verbose:   true,
	}

	details := map[string]string{"file": "events.jsonl"}
	err := formatter.Error("FAILURE", "ingest failed", details)
	require.NoError(t, err)
	assert.Empty(t, buf.String())
	assert.Contains(t, errBuf.String(), "Error [FAILURE]")
	assert.Contains(t, errBuf.String(), "Details:")
}

func TestOutputFormatter_FailUsesEngineCode(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := WrapExitError(ExitFailure, "event not found",
		fmt.Errorf("lookup: %w", engine.ErrNotFound))
	require.NoError(t, formatter.Fail(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "COMMAND_ERROR", errorCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, "FAILURE", errorCode(errors.New("boom")))
	assert.Equal(t, "BUSY", errorCode(WrapExitError(ExitFailure, "close", engine.ErrBusy)))
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
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
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Processing %s", "events.jsonl")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Processing events.jsonl")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("x: %w", NewExitError(ExitCommandError, "y"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
