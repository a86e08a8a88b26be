/*
DESCRIPTION
  sim.go provides the simulation pipeline of dpbsim: a decode goroutine
  driving a picture manager from a trace, a hardware goroutine completing
  decodes, and a display goroutine taking frames from the DPB display queue.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/ausocean/dpb/codec/dpb"
	"github.com/ausocean/dpb/codec/dpb/pool"
	"github.com/ausocean/dpb/codec/h264/h264dec"
	"github.com/ausocean/dpb/codec/h265/h265dec"
	"github.com/ausocean/utils/logging"
)

// Codec names.
const (
	codecAVC  = "avc"
	codecHEVC = "hevc"
)

// Time between attempts to get free buffers from the pool.
const bufferRetry = time.Millisecond

var errBufferTimeout = errors.New("timed out waiting for free buffers")

// options holds the simulation parameters.
type options struct {
	codec   string
	frames  int           // Frame and motion vector pool size.
	hwDelay time.Duration // Simulated decoding time per picture.
	wait    time.Duration // Longest wait for free buffers.
	avc     h264dec.SeqParams
	hevc    h265dec.SeqParams
}

// result holds the outcome of a simulation.
type result struct {
	POCs    []int32   // Displayed POCs in display order.
	Latency []float64 // Picture latency of each displayed frame.
	Skipped int       // Pictures dropped by the picture manager.
	Metrics dpb.Metrics
}

// LatencyStats returns the mean and standard deviation of the displayed
// picture latencies.
func (r *result) LatencyStats() (mean, std float64) {
	if len(r.Latency) == 0 {
		return 0, 0
	}
	if len(r.Latency) == 1 {
		return r.Latency[0], 0
	}
	return stat.MeanStdDev(r.Latency, nil)
}

// manager is the codec specific picture management used by the decode
// goroutine.
type manager interface {
	begin(r *Record) error
	end(frm, mv uint8) error
	flush()
}

var errSkip = errors.New("picture skipped")

type avcManager struct{ pm *h264dec.PictureManager }

func (m avcManager) begin(r *Record) error {
	s := &h264dec.Slice{
		NALUnitType:     r.NUT,
		NALRefIdc:       r.RefIdc,
		SliceType:       r.SliceType,
		FrameNum:        r.FrameNum,
		POC:             r.POC,
		NumRefIdxActive: r.NumRefIdxActive,
		DecRefPicMarking: &h264dec.DecRefPicMarking{
			NoOutputOfPriorPicsFlag:       r.NoOutputOfPriorPics,
			LongTermReferenceFlag:         r.LongTermRef,
			AdaptiveRefPicMarkingModeFlag: len(r.MMCO) != 0,
			MMCO:                          r.MMCO,
		},
		RefPicListModification: &h264dec.RefPicListModification{
			RefPicListModificationFlag: [2]bool{len(r.Modifications[0]) != 0, len(r.Modifications[1]) != 0},
			Modifications:              r.Modifications,
		},
	}
	_, _, err := m.pm.Begin(s)
	return err
}

func (m avcManager) end(frm, mv uint8) error { return m.pm.End(frm, mv) }
func (m avcManager) flush()                  { m.pm.Flush() }

type hevcManager struct{ pm *h265dec.PictureManager }

func (m hevcManager) begin(r *Record) error {
	if r.EOS {
		m.pm.EndOfSequence()
	}
	_, err := m.pm.Begin(&h265dec.Picture{
		NALUnitType:             r.NUT,
		POC:                     r.POC,
		PicOutputFlag:           r.output(),
		NoOutputOfPriorPicsFlag: r.NoOutputOfPriorPics,
		RPS:                     r.RPS,
	})
	if err == h265dec.ErrRASLSkipped {
		return errSkip
	}
	return err
}

func (m hevcManager) end(frm, mv uint8) error { return m.pm.End(frm, mv) }
func (m hevcManager) flush()                  { m.pm.Flush() }

// decoded is a picture handed from the decode goroutine to the hardware.
type decoded struct{ frm, mv uint8 }

// sim holds the state shared by the simulation goroutines.
type sim struct {
	opts options
	log  logging.Logger
	d    *dpb.DPB
	p    *pool.Pool
	mgr  manager

	mu  sync.Mutex
	poc map[uint8]int32 // Frame ID to POC of the picture decoded into it.
	res result

	hw     chan decoded
	hwDone chan struct{}
}

// run simulates decoding of the trace read from in with the DPB config cfg,
// whose Logger must be set.
func run(ctx context.Context, opts options, cfg dpb.Config, in io.Reader) (*result, error) {
	log := cfg.Logger
	p, err := pool.New(opts.frames, opts.frames, log)
	if err != nil {
		return nil, fmt.Errorf("could not create buffer pool: %w", err)
	}
	d, err := dpb.New(cfg, p)
	if err != nil {
		return nil, fmt.Errorf("could not create DPB: %w", err)
	}

	var mgr manager
	switch opts.codec {
	case codecAVC:
		pm := h264dec.NewPictureManager(d, log)
		err = pm.Activate(opts.avc)
		mgr = avcManager{pm}
	case codecHEVC:
		pm := h265dec.NewPictureManager(d, log)
		err = pm.Activate(opts.hevc)
		mgr = hevcManager{pm}
	default:
		return nil, fmt.Errorf("unknown codec: %s", opts.codec)
	}
	if err != nil {
		return nil, fmt.Errorf("could not activate sequence parameters: %w", err)
	}

	s := &sim{
		opts:   opts,
		log:    log,
		d:      d,
		p:      p,
		mgr:    mgr,
		poc:    make(map[uint8]int32),
		hw:     make(chan decoded, opts.frames),
		hwDone: make(chan struct{}),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.decode(ctx, newTraceReader(in)) })
	g.Go(func() error { return s.hardware(ctx) })
	g.Go(func() error { return s.display(ctx) })
	err = g.Wait()
	if err != nil {
		return nil, err
	}
	s.res.Metrics = d.Metrics()
	return &s.res, nil
}

// decode runs every record of tr through the picture manager, handing each
// picture to the hardware goroutine.
func (s *sim) decode(ctx context.Context, tr *traceReader) error {
	defer close(s.hw)
	for {
		r, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		err = s.mgr.begin(r)
		if err == errSkip {
			s.log.Info("skipped picture", "poc", r.POC, "nut", r.NUT)
			s.res.Skipped++
			continue
		}
		if err != nil {
			return fmt.Errorf("could not begin picture %d: %w", r.POC, err)
		}

		frm, mv, err := s.buffers(ctx)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.poc[frm] = r.POC
		s.mu.Unlock()

		err = s.mgr.end(frm, mv)
		if err != nil {
			return fmt.Errorf("could not end picture %d: %w", r.POC, err)
		}
		s.log.Debug("decoding", "poc", r.POC, "frameID", frm, "mvID", mv)

		select {
		case s.hw <- decoded{frm, mv}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// buffers returns a free frame and motion vector buffer, waiting for up to
// opts.wait for them to be released.
func (s *sim) buffers(ctx context.Context) (uint8, uint8, error) {
	deadline := time.After(s.opts.wait)
	for {
		frm, err := s.p.GetFrame()
		if err == nil {
			mv, err := s.p.GetMv()
			if err == nil {
				return frm, mv, nil
			}
			s.p.PutFrame(frm)
		}
		select {
		case <-time.After(bufferRetry):
		case <-deadline:
			return dpb.UndefID, dpb.UndefID, errBufferTimeout
		case <-ctx.Done():
			return dpb.UndefID, dpb.UndefID, ctx.Err()
		}
	}
}

// hardware completes decoding of each picture after opts.hwDelay. Once the
// decode goroutine is done it flushes the DPB.
func (s *sim) hardware(ctx context.Context) error {
	defer s.p.Signal()
	defer close(s.hwDone)
	for pic := range s.hw {
		if s.opts.hwDelay > 0 {
			select {
			case <-time.After(s.opts.hwDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		s.d.EndDecoding(pic.frm)
		s.p.PutFrame(pic.frm)
		s.p.PutMv(pic.mv)
		s.p.Signal()
	}

	// The decode goroutine has returned, so the manager is ours.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.mgr.flush()
	s.d.Terminate()
	return nil
}

// display takes frames from the display queue as they become ready until
// the hardware goroutine is done and the queue is empty.
func (s *sim) display(ctx context.Context) error {
	for {
		s.take()
		select {
		case <-s.hwDone:
			s.take()
			if n := s.d.NumDisplay(); n != 0 {
				return fmt.Errorf("%d frames left in display queue", n)
			}
			return nil
		default:
		}

		select {
		case <-s.p.Notify():
		case <-s.hwDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// take releases every ready frame at the head of the display queue.
func (s *sim) take() {
	for {
		id := s.d.GetDisplayBuffer()
		if id == dpb.UndefID {
			return
		}
		lat := s.d.FIFOLatency(id)
		s.d.ReleaseDisplayBuffer()

		s.mu.Lock()
		poc := s.poc[id]
		s.mu.Unlock()
		s.res.POCs = append(s.res.POCs, poc)
		s.res.Latency = append(s.res.Latency, float64(lat))
		s.log.Debug("displayed", "poc", poc, "frameID", id, "latency", lat)
	}
}
