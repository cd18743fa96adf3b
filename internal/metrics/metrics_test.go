package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/scorekeep/internal/events"
)

var errDuplicate = errors.New("duplicate")

func TestResult(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, ResultCreated},
		{"noop", errDuplicate, ResultNoop},
		{"wrapped noop", errors.Join(errors.New("ctx"), errDuplicate), ResultNoop},
		{"error", errors.New("boom"), ResultError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Result(tt.err, errDuplicate))
		})
	}
}

func TestObserveOperation(t *testing.T) {
	before := testutil.ToFloat64(OperationsTotal.WithLabelValues("test_op", ResultNoop))
	ObserveOperation("test_op", time.Now(), errDuplicate, errDuplicate)
	after := testutil.ToFloat64(OperationsTotal.WithLabelValues("test_op", ResultNoop))
	assert.Equal(t, before+1, after)
}

func TestObserver(t *testing.T) {
	counter := NotificationsTotal.WithLabelValues(string(events.ProjectOpened))
	before := testutil.ToFloat64(counter)

	bus := events.NewBus(nil)
	bus.Subscribe(Observer{})
	bus.Publish(context.Background(), events.Event{Kind: events.ProjectOpened})

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
