package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ecosync/core/internal/device"
	"github.com/ecosync/core/internal/protocol"
)

const writeQueueSize = 16

// writeCoordinator serialises parameter writes per device: one write in
// flight per device, later writes to the same device run in submission
// order. Writes to different devices do not wait on each other beyond
// the link's own request serialisation.
type writeCoordinator struct {
	engine *Engine

	mu     sync.Mutex
	queues map[device.ID]chan writeJob
	closed bool
	wg     sync.WaitGroup
}

type writeJob struct {
	ctx  context.Context
	run  func(ctx context.Context) error
	done chan error
}

func newWriteCoordinator(e *Engine) *writeCoordinator {
	return &writeCoordinator{
		engine: e,
		queues: make(map[device.ID]chan writeJob),
	}
}

func (w *writeCoordinator) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	for _, q := range w.queues {
		close(q)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// submit enqueues a write for the device and waits for it to run.
func (w *writeCoordinator) submit(ctx context.Context, id device.ID, run func(context.Context) error) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	q, ok := w.queues[id]
	if !ok {
		q = make(chan writeJob, writeQueueSize)
		w.queues[id] = q
		w.wg.Add(1)
		go w.worker(q)
	}
	w.mu.Unlock()

	job := writeJob{ctx: ctx, run: run, done: make(chan error, 1)}
	select {
	case q <- job:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *writeCoordinator) worker(q chan writeJob) {
	defer w.wg.Done()
	for job := range q {
		if err := job.ctx.Err(); err != nil {
			job.done <- err
			continue
		}
		job.done <- job.run(job.ctx)
	}
}

// WriteParameter writes a named parameter on a device. The value is
// checked against the device-reported range before transmission; the
// store is updated only after the controller acknowledges the write.
func (e *Engine) WriteParameter(ctx context.Context, id device.ID, name string, value float64) error {
	param, err := e.deps.Store.Parameter(id, name)
	if err != nil {
		return err
	}
	if !param.InRange(value) {
		return fmt.Errorf("%w: %s=%v, range [%v, %v]",
			ErrOutOfRange, name, value, param.Min, param.Max)
	}

	typ, payload, err := encodeWrite(id, param.Index, uint16(value))
	if err != nil {
		return err
	}

	return e.writes.submit(ctx, id, func(ctx context.Context) error {
		resp, err := e.request(ctx, typ, payload)
		if err != nil {
			return err
		}
		if _, accepted, err := protocol.DecodeWriteResponse(resp.Payload); err != nil {
			return errors.Join(ErrBadResponse, err)
		} else if !accepted {
			return fmt.Errorf("%w: %s=%v", ErrWriteRejected, name, value)
		}

		if err := e.deps.Store.SetParameterValue(id, name, value); err != nil {
			// Device accepted; a vanished store record is a race with
			// device removal, not a write failure.
			e.log.Warn("write confirmed but store update failed",
				"device", id.String(), "parameter", name, "error", err)
		}
		e.log.Info("parameter written",
			"device", id.String(), "parameter", name, "value", value)
		return nil
	})
}

// encodeWrite picks the frame type and payload for a write to the given
// device. Sub-device indexes are 1-based in IDs, 0-based on the wire.
func encodeWrite(id device.ID, index int, value uint16) (protocol.FrameType, []byte, error) {
	switch id.Kind {
	case device.KindController:
		return protocol.TypeSetParameter,
			protocol.EncodeSetParameterRequest(index, value), nil
	case device.KindMixer:
		return protocol.TypeSetMixerParameter,
			protocol.EncodeSetIndexedParameterRequest(id.Index-1, index, value), nil
	case device.KindThermostat:
		return protocol.TypeSetThermostatParameter,
			protocol.EncodeSetIndexedParameterRequest(id.Index-1, index, value), nil
	default:
		return 0, nil, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
}

// WriteSchedule validates and writes a weekly schedule, storing it after
// the controller accepts it.
func (e *Engine) WriteSchedule(ctx context.Context, sched *protocol.Schedule) error {
	return e.writes.submit(ctx, device.Controller, func(ctx context.Context) error {
		resp, err := e.request(ctx, protocol.TypeSetSchedule, protocol.EncodeSchedule(sched))
		if err != nil {
			return err
		}
		if _, accepted, err := protocol.DecodeWriteResponse(resp.Payload); err != nil {
			return errors.Join(ErrBadResponse, err)
		} else if !accepted {
			return fmt.Errorf("%w: schedule %s", ErrWriteRejected, sched.Type)
		}
		e.deps.Store.SetSchedule(sched)
		e.log.Info("schedule written", "schedule", sched.Type.String())
		return nil
	})
}
