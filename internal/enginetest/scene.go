package enginetest

import (
	"fmt"

	"github.com/openbracket/gdrb/internal/engine"
)

// PopulateQAScene builds the scene the bridge acceptance flows run
// against, shared by the package tests and the gdrb-hostsim binary:
//
//	root
//	└── Main (Node2D)
//	    ├── GestureTest (Node2D)  zoom, grows on pinch   [gestures]
//	    ├── Foo (Node)            state/health           [actors]
//	    └── StartButton (Button)  press_count            [ui]
//
// It also registers the advance_state custom command, which writes
// Foo.state.
func PopulateQAScene(s *Sim) {
	main := s.AddNode(nil, "Main", "Node2D", nil)

	gesture := s.AddNode(main, "GestureTest", "Node2D", map[string]any{"zoom": 1.0})
	gesture.AddToGroup("gestures")
	s.SimInputs().OnEvent(func(ev engine.InputEvent) {
		if ev.Kind != engine.EventMagnify || !gesture.Valid() {
			return
		}
		if z, err := gesture.Get("zoom"); err == nil {
			if zf, ok := z.(float64); ok {
				_ = gesture.Set("zoom", zf*ev.Factor)
			}
		}
	})

	foo := s.AddNode(main, "Foo", "Node", map[string]any{"state": "idle", "health": 100})
	foo.AddToGroup("actors")
	foo.RegisterMethod("get_state", func([]any) (any, error) {
		return foo.Get("state")
	})
	foo.RegisterMethod("take_damage", func(args []any) (any, error) {
		amount := 10.0
		if len(args) > 0 {
			if f, ok := asNumber(args[0]); ok {
				amount = f
			}
		}
		cur, _ := foo.Get("health")
		hp, _ := asNumber(cur)
		hp -= amount
		if err := foo.Set("health", hp); err != nil {
			return nil, err
		}
		return hp, nil
	})

	button := s.AddButton(main, "StartButton")
	button.AddToGroup("ui")
	button.DefineProperty("press_count", 0)
	button.OnPressed(func() {
		v, _ := button.Get("press_count")
		n, _ := asNumber(v)
		_ = button.Set("press_count", int(n)+1)
	})

	s.RegisterCommand("advance_state", func(args []any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("advance_state needs the target state")
		}
		state, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("state must be a string")
		}
		if err := foo.Set("state", state); err != nil {
			return nil, err
		}
		return state, nil
	})
}
