package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return out, cmd.Execute()
}

func TestQuoteCommandUsesDateGapTiers(t *testing.T) {
	out, err := run(t, "quote", "--service", "NIN_MOD_DOB", "--old-date", "1990-01-01", "--new-date", "2005-01-01")
	require.NoError(t, err)

	var got quoteOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, int64(60000), got.Quote.Total)
	assert.NotEmpty(t, got.DisplayTotal)
}

func TestQuoteCommandSurfacesPolicyViolation(t *testing.T) {
	_, err := run(t, "quote", "--service", "BVN_MOD_DOB", "--old-date", "1990-01-01", "--new-date", "2000-01-01", "--institution", "FCMB")
	require.Error(t, err)
}

func TestQuoteCommandRequiresService(t *testing.T) {
	_, err := run(t, "quote")
	require.Error(t, err)
}

func TestCatalogCommand(t *testing.T) {
	out, err := run(t, "catalog")
	require.NoError(t, err)

	var catalog struct {
		Version  string `json:"version"`
		Services []struct {
			Code string `json:"code"`
		} `json:"services"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &catalog))
	assert.NotEmpty(t, catalog.Version)
	assert.NotEmpty(t, catalog.Services)
}

func TestMissingScheduleFileFails(t *testing.T) {
	_, err := run(t, "--schedule", "/nonexistent/feeschedule.yml", "catalog")
	require.Error(t, err)
}
