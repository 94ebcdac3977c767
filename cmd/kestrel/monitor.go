package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"kestrel/internal/kernel"
	"kestrel/internal/ui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch a live kernel schedule a demo workload",
	Long: `Start a kernel on a real-time tick source, run a small mixed workload
on it, and show every thread's scheduler state as it changes.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().Duration("tick", time.Millisecond, "tick period")
	monitorCmd.Flags().Duration("refresh", 100*time.Millisecond, "screen refresh interval")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	tick, err := cmd.Flags().GetDuration("tick")
	if err != nil {
		return fmt.Errorf("failed to get tick flag: %w", err)
	}
	refresh, err := cmd.Flags().GetDuration("refresh")
	if err != nil {
		return fmt.Errorf("failed to get refresh flag: %w", err)
	}
	if !isTerminal(os.Stdout) {
		return errors.New("monitor needs a terminal")
	}

	k := kernel.New(kernel.Config{})
	quit, err := k.NewSem("quit", 0, 1)
	if err != nil {
		return err
	}
	if err := spawnDemoWorkload(k, quit); err != nil {
		return err
	}
	k.Start()

	clock := kernel.NewTickerClock(k, tick)
	clock.Start()

	poll := func() (uint64, []kernel.ThreadInfo) { return k.Now(), k.Snapshot() }
	model := ui.NewMonitorModel("kestrel monitor", poll, refresh)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()

	quit.GiveISR()
	k.Wait()
	clock.Stop()
	k.Stop()
	return uiErr
}

// spawnDemoWorkload sets up a small mixed workload: two semaphore ping-pong
// threads with different sleep lengths, a message-queue producer/consumer
// pair, and a supervisor that tears everything down once the quit semaphore
// fires.
func spawnDemoWorkload(k *kernel.Kernel, quit *kernel.Sem) error {
	ping, err := k.NewSem("ping", 1, 1)
	if err != nil {
		return err
	}
	pong, err := k.NewSem("pong", 0, 1)
	if err != nil {
		return err
	}
	q, err := k.NewMsgQueue("work", 8, 4)
	if err != nil {
		return err
	}

	if _, err := k.Spawn("ping", 5, func(t *kernel.Thread) {
		for {
			if err := ping.Take(t, kernel.Forever); err != nil {
				return
			}
			if err := k.Sleep(t, 40); err != nil {
				return
			}
			if err := pong.Give(t); err != nil {
				return
			}
		}
	}); err != nil {
		return err
	}
	if _, err := k.Spawn("pong", 5, func(t *kernel.Thread) {
		for {
			if err := pong.Take(t, kernel.Forever); err != nil {
				return
			}
			if err := k.Sleep(t, 70); err != nil {
				return
			}
			if err := ping.Give(t); err != nil {
				return
			}
		}
	}); err != nil {
		return err
	}

	if _, err := k.Spawn("producer", 7, func(t *kernel.Thread) {
		item := make([]byte, q.ItemSize())
		for seq := uint64(0); ; seq++ {
			if err := k.Sleep(t, 25); err != nil {
				return
			}
			for i := range item {
				item[i] = byte(seq >> (8 * i))
			}
			if err := q.Put(t, item, kernel.Forever); err != nil {
				return
			}
		}
	}); err != nil {
		return err
	}
	if _, err := k.Spawn("consumer", 7, func(t *kernel.Thread) {
		buf := make([]byte, q.ItemSize())
		for {
			if err := q.Get(t, buf, kernel.Forever); err != nil {
				return
			}
			if err := k.Sleep(t, 60); err != nil {
				return
			}
		}
	}); err != nil {
		return err
	}

	// Highest priority so teardown preempts whatever is running.
	_, err = k.Spawn("supervisor", 0, func(t *kernel.Thread) {
		if err := quit.Take(t, kernel.Forever); err != nil {
			return
		}
		_ = ping.Close(t)
		_ = pong.Close(t)
		_ = q.Close(t)
	})
	return err
}
