package taskpool

import (
	"fmt"

	lg "github.com/Andrej220/go-utils/zlog"
)

// reportInternalError reports a non-fatal engine fault such as a
// panicking OnOutcome hook or a failed CPU pin.
//
// If no handler is registered, the error is only logged.
func (p *Pool[T, R]) reportInternalError(e error) {
	lg.FromContext(p.logCtx()).Error("internal error", lg.Any("error", e))
	if p.opts.OnInternalError != nil {
		p.opts.OnInternalError(e)
	}
}

// deliver hands a result to OnOutcome. A panicking hook must not take the
// resolving worker down with it.
func (p *Pool[T, R]) deliver(res Result[R]) {
	if p.opts.OnOutcome == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.reportInternalError(fmt.Errorf("taskpool: OnOutcome panicked for task %s: %v", res.TaskID, r))
		}
	}()
	p.opts.OnOutcome(res)
}
