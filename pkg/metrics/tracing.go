package metrics

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// MethodTracer times one method call as a segment of the New Relic
// transaction in its context. A nil *MethodTracer is a valid no-op.
type MethodTracer struct {
	txn *newrelic.Transaction
	seg *newrelic.Segment
}

// TraceMethodCall opens a segment named "<component> <method>". It returns nil
// when ctx carries no transaction.
func TraceMethodCall(ctx context.Context, component, method string) *MethodTracer {
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		return nil
	}

	return &MethodTracer{
		txn: txn,
		seg: txn.StartSegment(component + " " + method),
	}
}

// AddAttribute tags the segment.
func (t *MethodTracer) AddAttribute(key string, value interface{}) {
	if t != nil {
		t.seg.AddAttribute(key, value)
	}
}

// Finish closes the segment, reporting err to the transaction when it is
// non-nil.
func (t *MethodTracer) Finish(err error) {
	if t == nil {
		return
	}

	if err != nil {
		t.txn.NoticeError(err)
	}
	t.seg.End()
}
