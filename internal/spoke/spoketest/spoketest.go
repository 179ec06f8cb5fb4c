// Package spoketest builds valid spoke configurations for tests.
package spoketest

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/imamik/hubspoke/internal/addressing"
	"github.com/imamik/hubspoke/internal/spoke"
)

// SSHPublicKey returns a freshly generated ed25519 key in authorized_keys form.
func SSHPublicKey(t testing.TB) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
}

// Config returns a normalized, valid configuration for spokeID.
func Config(t testing.TB, spokeID int, client string) spoke.Configuration {
	t.Helper()
	planner, err := addressing.NewPlanner(addressing.DefaultBase)
	require.NoError(t, err)

	cfg := spoke.Configuration{
		SpokeID:      spokeID,
		ClientName:   client,
		SSHPublicKey: SSHPublicKey(t),
	}.Normalize(spoke.Defaults{}, planner)
	require.NoError(t, cfg.Validate())
	return cfg
}
