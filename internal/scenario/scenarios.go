package scenario

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"fortio.org/safecast"

	"kestrel/internal/kernel"
	"kestrel/internal/ktrace"
)

// Threads of one kernel run strictly one at a time, so scenario state
// shared between thread bodies needs no locking; the external goroutine
// only reads it after Wait returns.

const msgqItemSize = 8

// stopMark poisons the work queue so consumers drain and exit.
const stopMark = ^uint32(0)

func runMsgQ(cfg Config, tr ktrace.Tracer) (Result, error) {
	mc := cfg.MsgQ
	k := newKernel(tr)
	q, err := k.NewMsgQueue("work", msgqItemSize, mc.Capacity)
	if err != nil {
		return Result{}, err
	}

	var (
		delivered uint64
		lastSeq   = make([]uint32, mc.Producers)
		producers = make([]kernel.ThreadID, 0, mc.Producers)
		errs      []error
	)

	for p := range mc.Producers {
		id, convErr := safecast.Conv[uint32](p)
		if convErr != nil {
			return Result{}, convErr
		}
		tid, spawnErr := k.Spawn(fmt.Sprintf("prod-%d", p), 5, func(t *kernel.Thread) {
			item := make([]byte, msgqItemSize)
			for seq := 1; seq <= mc.Messages; seq++ {
				binary.LittleEndian.PutUint32(item[0:4], id)
				binary.LittleEndian.PutUint32(item[4:8], uint32(seq))
				if err := q.Put(t, item, kernel.Forever); err != nil {
					errs = append(errs, fmt.Errorf("producer %d put: %w", id, err))
					return
				}
			}
		})
		if spawnErr != nil {
			return Result{}, spawnErr
		}
		producers = append(producers, tid)
	}

	for c := range mc.Consumers {
		if _, err := k.Spawn(fmt.Sprintf("cons-%d", c), 5, func(t *kernel.Thread) {
			buf := make([]byte, msgqItemSize)
			for {
				if err := q.Get(t, buf, kernel.Forever); err != nil {
					errs = append(errs, fmt.Errorf("consumer get: %w", err))
					return
				}
				p := binary.LittleEndian.Uint32(buf[0:4])
				if p == stopMark {
					return
				}
				seq := binary.LittleEndian.Uint32(buf[4:8])
				if seq != lastSeq[p]+1 {
					errs = append(errs, fmt.Errorf("producer %d: delivered seq %d after %d", p, seq, lastSeq[p]))
					return
				}
				lastSeq[p] = seq
				delivered++
			}
		}); err != nil {
			return Result{}, err
		}
	}

	// The supervisor outranks nobody: it drains last, then poisons the
	// queue once every producer is done.
	if _, err := k.Spawn("supervisor", 6, func(t *kernel.Thread) {
		for _, tid := range producers {
			if err := k.Join(t, tid, kernel.Forever); err != nil {
				errs = append(errs, fmt.Errorf("join producer: %w", err))
				return
			}
		}
		stop := make([]byte, msgqItemSize)
		binary.LittleEndian.PutUint32(stop[0:4], stopMark)
		for range mc.Consumers {
			if err := q.Put(t, stop, kernel.Forever); err != nil {
				errs = append(errs, fmt.Errorf("poison put: %w", err))
				return
			}
		}
	}); err != nil {
		return Result{}, err
	}

	k.Start()
	k.Wait()
	ticks := k.Now()
	k.Stop()
	if len(errs) > 0 {
		return Result{}, errs[0]
	}
	want := uint64(mc.Producers) * uint64(mc.Messages)
	if delivered != want {
		return Result{}, fmt.Errorf("delivered %d of %d messages", delivered, want)
	}
	return Result{
		Ops:   delivered,
		Ticks: ticks,
		Notes: []string{fmt.Sprintf("%d producers, %d consumers, capacity %d, strict FIFO per producer", mc.Producers, mc.Consumers, mc.Capacity)},
	}, nil
}

const (
	inheritHolderPrio    kernel.Priority = 10
	inheritContenderPrio kernel.Priority = 1
)

func runInherit(cfg Config, tr ktrace.Tracer) (Result, error) {
	ic := cfg.Inherit
	k := newKernel(tr)
	m := k.NewMutex("guard")
	ready, err := k.NewSem("ready", 0, 1)
	if err != nil {
		return Result{}, err
	}

	var (
		boosts   uint64
		restores uint64
		errs     []error
	)
	fail := func(err error) { errs = append(errs, err) }

	_, err = k.Spawn("holder", inheritHolderPrio, func(t *kernel.Thread) {
		for s := 0; s < ic.Sections; s++ {
			if err := m.Lock(t, kernel.Forever); err != nil {
				fail(err)
				return
			}
			// Waking the contender preempts us; it blocks on the mutex and
			// donates its priority before we run again.
			if err := ready.Give(t); err != nil {
				fail(err)
				return
			}
			if p, _ := k.PriorityOf(t.ID()); p == inheritContenderPrio {
				boosts++
			}
			if ic.HoldFor > 0 {
				if err := k.Sleep(t, uint32(ic.HoldFor)); err != nil {
					fail(err)
					return
				}
			}
			if err := m.Unlock(t); err != nil {
				fail(err)
				return
			}
			if p, _ := k.PriorityOf(t.ID()); p == inheritHolderPrio {
				restores++
			}
		}
	})
	if err != nil {
		return Result{}, err
	}

	if _, err := k.Spawn("contender", inheritContenderPrio, func(t *kernel.Thread) {
		for s := 0; s < ic.Sections; s++ {
			if err := ready.Take(t, kernel.Forever); err != nil {
				fail(err)
				return
			}
			if err := m.Lock(t, kernel.Forever); err != nil {
				fail(err)
				return
			}
			if err := m.Unlock(t); err != nil {
				fail(err)
				return
			}
		}
	}); err != nil {
		return Result{}, err
	}

	k.Start()
	k.Wait()
	ticks := k.Now()
	k.Stop()
	if len(errs) > 0 {
		return Result{}, errs[0]
	}
	sections := uint64(ic.Sections)
	if boosts != sections || restores != sections {
		return Result{}, fmt.Errorf("inheritance observed in %d/%d sections, restored in %d/%d", boosts, sections, restores, sections)
	}
	return Result{
		Ops:   sections,
		Ticks: ticks,
		Notes: []string{fmt.Sprintf("holder boosted %d→%d and back, every section", inheritHolderPrio, inheritContenderPrio)},
	}, nil
}

func runMbox(cfg Config, tr ktrace.Tracer) (Result, error) {
	bc := cfg.Mbox
	k := newKernel(tr)
	mb := k.NewMbox("rpc")

	var (
		echoed  uint64
		clients = make([]kernel.ThreadID, 0, bc.Clients)
		errs    []error
	)
	fail := func(err error) { errs = append(errs, err) }

	server, err := k.Spawn("server", 3, func(t *kernel.Thread) {
		buf := make([]byte, bc.Payload)
		for {
			info, err := mb.Recv(t, buf, 0, kernel.Forever)
			if errors.Is(err, kernel.ErrDeleted) {
				return
			}
			if err != nil {
				fail(fmt.Errorf("server recv: %w", err))
				return
			}
			if err := mb.Send(t, buf[:info.Size], info.Sender, kernel.Forever); err != nil {
				fail(fmt.Errorf("server reply: %w", err))
				return
			}
		}
	})
	if err != nil {
		return Result{}, err
	}

	for c := range bc.Clients {
		done, semErr := k.NewSem(fmt.Sprintf("done-%d", c), 0, 1)
		if semErr != nil {
			return Result{}, semErr
		}
		tid, spawnErr := k.Spawn(fmt.Sprintf("client-%d", c), 5, func(t *kernel.Thread) {
			req := bytes.Repeat([]byte{byte(c + 1)}, bc.Payload)
			reply := make([]byte, bc.Payload)
			for r := 0; r < bc.Requests; r++ {
				var err error
				if r%2 == 0 {
					err = mb.Send(t, req, server, kernel.Forever)
				} else {
					// Exercise the asynchronous form on odd requests.
					if err = mb.SendAsync(t, req, server, done); err == nil {
						err = done.Take(t, kernel.Forever)
					}
				}
				if err != nil {
					fail(fmt.Errorf("client %d send: %w", c, err))
					return
				}
				info, err := mb.Recv(t, reply, server, kernel.Forever)
				if err != nil {
					fail(fmt.Errorf("client %d recv: %w", c, err))
					return
				}
				if info.Size != bc.Payload || !bytes.Equal(reply[:info.Size], req) {
					fail(fmt.Errorf("client %d: echo mismatch on request %d", c, r))
					return
				}
				echoed++
			}
		})
		if spawnErr != nil {
			return Result{}, spawnErr
		}
		clients = append(clients, tid)
	}

	if _, err := k.Spawn("supervisor", 6, func(t *kernel.Thread) {
		for _, tid := range clients {
			if err := k.Join(t, tid, kernel.Forever); err != nil {
				fail(fmt.Errorf("join client: %w", err))
				return
			}
		}
		if err := mb.Close(t); err != nil {
			fail(fmt.Errorf("close mailbox: %w", err))
		}
	}); err != nil {
		return Result{}, err
	}

	k.Start()
	k.Wait()
	ticks := k.Now()
	k.Stop()
	if len(errs) > 0 {
		return Result{}, errs[0]
	}
	want := uint64(bc.Clients) * uint64(bc.Requests)
	if echoed != want {
		return Result{}, fmt.Errorf("echoed %d of %d requests", echoed, want)
	}
	return Result{
		Ops:   echoed,
		Ticks: ticks,
		Notes: []string{fmt.Sprintf("%d clients, %d-byte payloads, addressed replies", bc.Clients, bc.Payload)},
	}, nil
}

func runSem(cfg Config, tr ktrace.Tracer) (Result, error) {
	sc := cfg.Sem
	k := newKernel(tr)
	ping, err := k.NewSem("ping", 0, 1)
	if err != nil {
		return Result{}, err
	}
	pong, err := k.NewSem("pong", 0, 1)
	if err != nil {
		return Result{}, err
	}

	var (
		handoffs uint64
		errs     []error
	)

	if _, err := k.Spawn("ping", 5, func(t *kernel.Thread) {
		for r := 0; r < sc.Rounds; r++ {
			if err := ping.Give(t); err != nil {
				errs = append(errs, err)
				return
			}
			if err := pong.Take(t, kernel.Forever); err != nil {
				errs = append(errs, err)
				return
			}
			handoffs += 2
		}
	}); err != nil {
		return Result{}, err
	}
	if _, err := k.Spawn("pong", 5, func(t *kernel.Thread) {
		for r := 0; r < sc.Rounds; r++ {
			if err := ping.Take(t, kernel.Forever); err != nil {
				errs = append(errs, err)
				return
			}
			if err := pong.Give(t); err != nil {
				errs = append(errs, err)
				return
			}
		}
	}); err != nil {
		return Result{}, err
	}

	k.Start()
	k.Wait()
	ticks := k.Now()
	k.Stop()
	if len(errs) > 0 {
		return Result{}, errs[0]
	}
	return Result{
		Ops:   handoffs,
		Ticks: ticks,
		Notes: []string{fmt.Sprintf("%d rendezvous rounds, direct hand-off both ways", sc.Rounds)},
	}, nil
}
