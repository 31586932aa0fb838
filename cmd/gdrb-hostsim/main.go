// Command gdrb-hostsim is a headless stand-in for a bridge-enabled
// game: a Sim engine running the QA scene at 60 Hz with the bridge
// activated from the environment. Missions and MCP sessions that need
// a live host run against it.
//
// Activation follows the embedded contract: with no GDRB_TOKEN and no
// GODOT_DEBUG_SERVER=1 in the environment the process runs as a plain
// game and the bridge never starts.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/openbracket/gdrb/internal/bridge"
	"github.com/openbracket/gdrb/internal/enginetest"
)

const tickRate = time.Second / 60

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gdrb-hostsim:", err)
		os.Exit(1)
	}
}

func run() error {
	sim := enginetest.NewSim()
	enginetest.PopulateQAScene(sim)

	b, err := bridge.Activate(sim)
	if err != nil {
		return fmt.Errorf("bridge activation: %w", err)
	}
	if b == nil {
		return fmt.Errorf("bridge inactive: set GDRB_TOKEN or GODOT_DEBUG_SERVER=1")
	}
	defer b.Close()

	// GDRB_SIM_FLIP_MS > 0 flips Foo.state to "done" that long after
	// startup, giving wait_for demos an asynchronous change to observe
	// without a second client driving the scene.
	flipFrame := int64(0)
	if ms, _ := strconv.Atoi(os.Getenv("GDRB_SIM_FLIP_MS")); ms > 0 {
		flipFrame = int64(ms) * 60 / 1000
		if flipFrame == 0 {
			flipFrame = 1
		}
	}
	foo := sim.FindNode("Main/Foo")

	fmt.Fprintln(os.Stderr, "gdrb-hostsim: QA scene loaded, running at 60 Hz")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.Tick()
			sim.AdvanceFrame()
			if flipFrame > 0 && sim.Frames() == flipFrame && foo != nil {
				_ = foo.Set("state", "done")
			}
			if sim.QuitRequested() {
				fmt.Fprintln(os.Stderr, "gdrb-hostsim: quit requested")
				return nil
			}
		case sig := <-sigCh:
			fmt.Fprintf(os.Stderr, "gdrb-hostsim: received %s, shutting down\n", sig)
			return nil
		}
	}
}
