package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrintListTypesListsEveryRegisteredFormat(t *testing.T) {
	var buf bytes.Buffer
	printListTypes(&buf)
	out := buf.String()
	require.Contains(t, out, "avi")
	require.Contains(t, out, "matroska")
	require.Contains(t, out, "wav")
}

func TestPrintListLanguagesDescribesTheRule(t *testing.T) {
	var buf bytes.Buffer
	printListLanguages(&buf)
	require.True(t, strings.Contains(buf.String(), "ISO-639-2"))
}
