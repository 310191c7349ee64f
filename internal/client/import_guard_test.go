package client

import (
	"testing"

	"whalewatcher/testutil"
)

func TestClientStaysOffServerStack(t *testing.T) {
	testutil.AssertNoTransitiveDependency(t, ".", testutil.ServerStackForbidden, "the CLI client must not link the server")
}
