package order

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var meter = otel.Meter("github.com/Additional-Code/orderdesk/service/order")

type instruments struct {
	placed   metric.Int64Counter
	moved    metric.Int64Counter
	imported metric.Int64Counter
	skipped  metric.Int64Counter
	purged   metric.Int64Counter
}

func newInstruments() instruments {
	return instruments{
		placed:   counter("orders.placed", "Orders appended by checkout"),
		moved:    counter("orders.moved", "Orders relocated between partitions"),
		imported: counter("orders.imported", "Legacy orders imported"),
		skipped:  counter("orders.import_skipped", "Legacy orders skipped as already present"),
		purged:   counter("orders.purged", "Test orders removed by the janitor"),
	}
}

func counter(name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}
