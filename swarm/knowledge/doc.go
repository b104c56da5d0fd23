// Package knowledge supplies external evidence scores for trust evaluation.
//
// The trust evaluator treats evidence as an optional component: any provider
// implementing RetrieveEvidence can back it. This package ships two
// implementations. StaticProvider serves operator-pinned scores and is the
// fixture of choice in tests. WorkLog keeps a bounded trail of completed work
// per agent and scores evidence from outcome rate and task similarity, so an
// agent's demonstrated record on similar tasks feeds back into its trust.
package knowledge
