package event

import (
	"fmt"

	"github.com/ikuo/appmap/idgen"
)

// A CallNode is a call event together with its return and nested calls.
type CallNode struct {
	Call     Event
	Return   *Event
	Children []*CallNode
}

// BuildCallTree reconstructs the per-thread call nesting of an event log.
//
// Each call is placed under the innermost call of the same thread that was
// still open when it was emitted. A return closes the call named by its
// ParentID together with every call opened after it on that thread. Events
// must appear in log order.
func BuildCallTree(events []Event) ([]*CallNode, error) {
	var roots []*CallNode

	stacks := make(map[ThreadID][]*CallNode)

	for i := range events {
		e := events[i]

		switch e.Kind {
		case KindCall:
			node := &CallNode{Call: e}
			stack := stacks[e.ThreadID]

			if len(stack) == 0 {
				roots = append(roots, node)
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}

			stacks[e.ThreadID] = append(stack, node)
		case KindReturn:
			stack := stacks[e.ThreadID]

			idx := indexOfCall(stack, e.ParentID)
			if idx < 0 {
				return nil, fmt.Errorf(
					"return %d refers to call %d which is not open on thread %d",
					e.ID, e.ParentID, e.ThreadID)
			}

			stack[idx].Return = &events[i]
			stacks[e.ThreadID] = stack[:idx]
		default:
			return nil, fmt.Errorf("event %d has unknown kind %q", e.ID, e.Kind)
		}
	}

	return roots, nil
}

func indexOfCall(stack []*CallNode, id idgen.ID) int {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].Call.ID == id {
			return i
		}
	}

	return -1
}
