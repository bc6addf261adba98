//go:build unix

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupSignal(t *testing.T) {
	for _, name := range []string{"SIGUSR1", "usr1", " USR2 "} {
		_, ok := lookupSignal(name)
		require.True(t, ok, name)
	}
	_, ok := lookupSignal("SIGNOPE")
	require.False(t, ok)

	cfg := &appConfig{stop: "none"}
	pin, _, err := initStopInput(cfg, testLogger())
	require.NoError(t, err)
	require.Nil(t, pin)
}
