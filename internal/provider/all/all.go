// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package all registers every cloud provider implementation. Import it
// for its side effects from any entry point that opens providers.
package all

import (
	_ "github.com/juju/pullcache/internal/provider/ecr"
	_ "github.com/juju/pullcache/internal/provider/gar"
)
