package entity

import "fmt"

// Partition names one lifecycle stage. Each stage is stored in its own table.
type Partition string

const (
	PartitionPending   Partition = "pending"
	PartitionAccepted  Partition = "accepted"
	PartitionDelivered Partition = "delivered"
)

// Partitions lists every stage in lifecycle order.
var Partitions = []Partition{PartitionPending, PartitionAccepted, PartitionDelivered}

// ParsePartition validates a partition name received from a caller.
func ParsePartition(s string) (Partition, error) {
	p := Partition(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown partition %q", s)
	}
	return p, nil
}

// Valid reports whether p is one of the known stages.
func (p Partition) Valid() bool {
	switch p {
	case PartitionPending, PartitionAccepted, PartitionDelivered:
		return true
	default:
		return false
	}
}

// Next returns the stage that directly follows p.
func (p Partition) Next() (Partition, bool) {
	switch p {
	case PartitionPending:
		return PartitionAccepted, true
	case PartitionAccepted:
		return PartitionDelivered, true
	default:
		return "", false
	}
}

// CanMoveTo reports whether to is the direct successor of p.
func (p Partition) CanMoveTo(to Partition) bool {
	next, ok := p.Next()
	return ok && next == to
}

// Table is the physical table holding the stage.
func (p Partition) Table() string {
	return "orders_" + string(p)
}

func (p Partition) String() string {
	return string(p)
}
