// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package reconcile_test

import (
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/pullcache/core/status"
	"github.com/juju/pullcache/internal/provider/fake"
	"github.com/juju/pullcache/provider"
	"github.com/juju/pullcache/reconcile"
)

type ReportSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&ReportSuite{})

func (s *ReportSuite) mixedReport() *reconcile.Report {
	return &reconcile.Report{
		Results: map[provider.Kind]reconcile.ProviderResult{
			fake.KindOne: {
				Status: status.Done,
				Endpoints: map[string]string{
					"hub-proxy": "registry.fakeone.test/hub-proxy/",
				},
			},
			fake.KindTwo: {
				Status: status.Failed,
				Error:  errors.New("boom"),
			},
		},
	}
}

func (s *ReportSuite) TestDone(c *gc.C) {
	report := s.mixedReport()
	c.Check(report.Done(), jc.IsFalse)

	report.Results[fake.KindTwo] = reconcile.ProviderResult{
		Status: status.Done,
		Endpoints: map[string]string{
			"hub-proxy": "registry.faketwo.test/hub-proxy/",
		},
	}
	c.Check(report.Done(), jc.IsTrue)
}

func (s *ReportSuite) TestFailedKinds(c *gc.C) {
	report := s.mixedReport()
	c.Check(report.FailedKinds(), jc.DeepEquals, []provider.Kind{fake.KindTwo})

	report.Results[fake.KindOne] = reconcile.ProviderResult{
		Status: status.Failed,
		Error:  errors.New("also boom"),
	}
	c.Check(report.FailedKinds(), jc.DeepEquals, []provider.Kind{fake.KindOne, fake.KindTwo})
}

func (s *ReportSuite) TestEndpointsByRegistry(c *gc.C) {
	report := s.mixedReport()
	report.Results[fake.KindTwo] = reconcile.ProviderResult{
		Status: status.Done,
		Endpoints: map[string]string{
			"hub-proxy":   "registry.faketwo.test/hub-proxy/",
			"quay-mirror": "registry.faketwo.test/quay-mirror/",
		},
	}
	c.Check(report.Endpoints(), jc.DeepEquals, map[string]map[provider.Kind]string{
		"hub-proxy": {
			fake.KindOne: "registry.fakeone.test/hub-proxy/",
			fake.KindTwo: "registry.faketwo.test/hub-proxy/",
		},
		"quay-mirror": {
			fake.KindTwo: "registry.faketwo.test/quay-mirror/",
		},
	})
}

func (s *ReportSuite) TestSummaryYAML(c *gc.C) {
	report := s.mixedReport()
	c.Check(report.Summary(), gc.Equals, `fakeone:
  status: done
  endpoints:
    hub-proxy: registry.fakeone.test/hub-proxy/
faketwo:
  status: failed
  error: boom
`)
}
