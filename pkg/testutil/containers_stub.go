//go:build !integration

package testutil

import "testing"

func startNATS(t *testing.T) string {
	t.Helper()
	t.Skipf("%s not set; build with -tags integration to start a NATS container", EnvNATSURL)
	return ""
}
