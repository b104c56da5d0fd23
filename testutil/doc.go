/*
Package testutil provides shared helpers for swarmroute tests.

The package keeps test infrastructure out of the production packages:
context helpers that cancel themselves on cleanup, JSON must-helpers,
and polling waits for asynchronous assertions.

# Subpackages

  - testutil/fixtures: factories for agents, tasks, outcomes, and
    routing decisions with sensible defaults, so tests only spell out
    the fields they care about
  - testutil/mocks: scripted fakes with builder-style configuration
    and error injection, including a recording Invoker, an evidence
    provider, and a decision store wrapper that fails on demand

# Usage

	ctx := testutil.TestContext(t)
	invoker := mocks.NewScriptedInvoker().FailFor("flaky-1", errors.New("down"))
	core, err := swarmroute.New(nil, swarmroute.WithLocalInvoker(invoker))
*/
package testutil
