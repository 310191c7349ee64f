package httpapi

import (
	"testing"

	"whalewatcher/testutil"
)

func TestHTTPAdapterDoesNotImportPersistenceDrivers(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.PersistenceDriverForbidden, "handlers reach the store only through core.Service")
}
