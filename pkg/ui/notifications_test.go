package ui

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierRunFinished(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var buf bytes.Buffer
	var sent []string
	n := NewNotifierTo(&buf, func(title, message string) error {
		sent = append(sent, title+"|"+message)
		return errors.New("no notification daemon")
	})

	n.RunFinished("sdo-aia", 12, 0, nil)
	n.RunFinished("sdo-aia", 10, 2, nil)
	n.RunFinished("sdo-aia", 3, 0, errors.New("ledger: disk full"))

	require.Len(t, sent, 3)
	assert.Equal(t, "heliodata: sdo-aia|12 samples stored", sent[0])
	assert.Equal(t, "heliodata: sdo-aia|10 samples stored, 2 failed", sent[1])
	assert.Equal(t, "heliodata: sdo-aia|download stopped: ledger: disk full", sent[2])
	assert.Contains(t, buf.String(), "heliodata: sdo-aia: 10 samples stored, 2 failed")
}

func TestNotifierWithoutDesktop(t *testing.T) {
	var buf bytes.Buffer
	n := NewNotifierTo(&buf, nil)
	n.RunFinished("solo", 1, 0, nil)
	assert.Contains(t, buf.String(), "1 samples stored")

	assert.Nil(t, desktopSender("plan9"))
	assert.NotNil(t, desktopSender("linux"))
}
