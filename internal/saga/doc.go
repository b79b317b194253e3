// Package saga drives workflows through the engine one step at a time.
//
// A workflow is a function from a payload to a Sequence: a lazy,
// non-restartable producer of effect invocations whose completion value is
// the saga's result. The Driver pulls an invocation, runs it, feeds the
// result back and repeats, strictly sequentially. Step N+1 is never
// requested before step N's ExecuteStep returns.
//
// Workflows are usually written as straight-line Go with Generate:
//
//	var Order = saga.Generate(func(y *saga.Yield, o OrderRequest) (any, error) {
//		res, err := saga.Do[Reservation](y, reserve.Bind(o.SKU))
//		if err != nil {
//			return nil, err
//		}
//		return saga.Do[Receipt](y, charge.Bind(Charge{Order: o.ID, Amount: o.Total}))
//	})
//
// Because every step is replayed from history, a workflow body must be
// deterministic: the same payload and step results must yield the same
// invocations in the same order.
//
// The system parameters pseudo-effect (effect.SystemParams) never reaches
// the engine. The Driver resolves it through its Environment and does not
// count it as a step.
package saga
