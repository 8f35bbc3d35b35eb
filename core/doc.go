// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

/*
Package core holds concepts and pure logic pertaining to the engine's
domain: registry declarations and run status. It exists so that the
model stays testable without dialing a cloud.

It's most important to be aware what should *not* go here. In particular:

  - if it makes any reference to a provider SDK, it should not be in here.
  - if it performs I/O of any kind, or touches secret material beyond
    validating its presence, it should not be in here.
  - if it has to do with the *specifics* of any registry substrate
    (ECR, Artifact Registry, ...) it should not be in here.

...and more generally, when adding to core:

  - it's fine to import from any subpackage of
    "github.com/juju/pullcache/core"
  - but *never* import from any *other* subpackage of
    "github.com/juju/pullcache"
  - don't introduce mutable global state.
*/
package core
