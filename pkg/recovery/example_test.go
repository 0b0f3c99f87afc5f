package recovery_test

import (
	"errors"
	"fmt"

	"github.com/setforge/setforge/pkg/recovery"
)

// ExampleHandler_Handle demonstrates classifying a fault and reading
// the recovery advice.
func ExampleHandler_Handle() {
	h := recovery.NewHandler(recovery.Config{})

	fault := errors.New("dial tcp 127.0.0.1:6333: connection refused")
	ec := h.Handle(fault, recovery.Context{
		Phase: "services",
		Step:  "start-qdrant",
	})

	fmt.Println(ec.Category)
	fmt.Println(ec.Severity)
	fmt.Println(ec.SuggestedActions[0])
	// Output:
	// network
	// medium
	// retry
}

// ExampleSnapshotStore_RollbackTo demonstrates the stack discipline of
// snapshot rollback.
func ExampleSnapshotStore_RollbackTo() {
	s := recovery.NewSnapshotStore()

	first := s.Create("preflight", "checks", "before preflight", nil)
	s.Create("services", "start-qdrant", "before services", nil)
	s.Create("configuration", "write-settings", "before configuration", nil)

	ok, _ := s.RollbackTo(first, false)
	fmt.Println(ok)
	fmt.Println(len(s.Active()))
	// Output:
	// true
	// 1
}
