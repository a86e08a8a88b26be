/*
DESCRIPTION
  dpbsim drives a decoded picture buffer from a picture trace, simulating a
  decoder, its hardware and a display, and reports the display order and
  picture latency.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// dpbsim is a command line decoded picture buffer simulator.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/dpb/codec/dpb"
	"github.com/ausocean/dpb/codec/h264/h264dec"
	"github.com/ausocean/dpb/codec/h265/h265dec"
	"github.com/ausocean/utils/logging"
)

// Current software version.
const version = "v0.1.0"

// Logging configuration.
const (
	logMaxSize   = 50 // MB
	logMaxBackup = 5
	logMaxAge    = 7 // days
	logSuppress  = true
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version")
		inPtr       = flag.String("in", "-", "picture trace in JSON lines, - for stdin")
		codecPtr    = flag.String("codec", codecAVC, "codec of the trace: avc or hevc")
		lowRefPtr   = flag.Bool("lowref", false, "display pictures as soon as they are decoded by the hardware")
		lowLatPtr   = flag.Bool("lowlat", false, "bump every picture for output as soon as it is decoded")
		configPtr   = flag.String("config", "", "JSON file of DPB config variables")
		logPtr      = flag.String("log", "", "log file path")
		verbPtr     = flag.String("v", "Info", "log verbosity: Debug, Info, Warning, Error or Fatal")
		framesPtr   = flag.Int("frames", dpb.FrameBufPoolSize, "number of frame buffers")
		hwDelayPtr  = flag.Duration("hwdelay", 0, "simulated hardware decoding time per picture")
		waitPtr     = flag.Duration("wait", 2*time.Second, "longest wait for free buffers")

		log2MaxFrameNum = flag.Int("log2maxfn", 4, "AVC log2_max_frame_num")
		maxNumRefFrames = flag.Int("maxref", 4, "AVC max_num_ref_frames")
		maxDecFrameBuf  = flag.Int("maxdecbuf", 4, "AVC max_dec_frame_buffering or HEVC sps_max_dec_pic_buffering")
		gaps            = flag.Bool("gaps", false, "AVC gaps_in_frame_num_value_allowed_flag")
		log2MaxPOCLsb   = flag.Int("log2maxpoclsb", 8, "HEVC log2_max_pic_order_cnt_lsb")
		maxNumReorder   = flag.Int("reorder", 2, "HEVC sps_max_num_reorder_pics")
		latencyPlus1    = flag.Uint("latency", 0, "HEVC sps_max_latency_increase_plus1")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	var w io.Writer = os.Stderr
	if *logPtr != "" {
		// Create lumberjack logger to handle logging to file.
		fileLog := &lumberjack.Logger{
			Filename:   *logPtr,
			MaxSize:    logMaxSize,
			MaxBackups: logMaxBackup,
			MaxAge:     logMaxAge,
		}
		defer fileLog.Close()
		w = io.MultiWriter(os.Stderr, fileLog)
	}
	log := logging.New(logging.Info, w, logSuppress)

	vars, err := readVars(*configPtr)
	if err != nil {
		log.Fatal("could not read config", "error", err.Error())
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "v":
			vars[dpb.KeyLogging] = *verbPtr
		case "lowref":
			if *lowRefPtr {
				vars[dpb.KeyMode] = dpb.ModeLowRef.String()
			}
		case "lowlat":
			vars[dpb.KeyLowLatency] = strconv.FormatBool(*lowLatPtr)
		}
	})
	if _, ok := vars[dpb.KeyLogging]; !ok {
		vars[dpb.KeyLogging] = *verbPtr
	}

	cfg := dpb.Config{Logger: log}
	cfg.Update(vars)
	log.SetLevel(cfg.LogLevel)
	log.Info("starting dpbsim", "version", version, "codec", *codecPtr)

	in := io.Reader(os.Stdin)
	if *inPtr != "-" {
		f, err := os.Open(*inPtr)
		if err != nil {
			log.Fatal("could not open trace", "error", err.Error())
		}
		defer f.Close()
		in = f
	}

	opts := options{
		codec:   *codecPtr,
		frames:  *framesPtr,
		hwDelay: *hwDelayPtr,
		wait:    *waitPtr,
		avc: h264dec.SeqParams{
			Log2MaxFrameNum:       *log2MaxFrameNum,
			MaxNumRefFrames:       *maxNumRefFrames,
			MaxDecFrameBuffering:  *maxDecFrameBuf,
			GapsInFrameNumAllowed: *gaps,
		},
		hevc: h265dec.SeqParams{
			Log2MaxPOCLsb:           *log2MaxPOCLsb,
			MaxDecPicBuffering:      *maxDecFrameBuf,
			MaxNumReorder:           *maxNumReorder,
			MaxLatencyIncreasePlus1: uint32(*latencyPlus1),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	res, err := run(ctx, opts, cfg, in)
	if err != nil {
		log.Fatal("simulation failed", "error", err.Error())
	}
	report(os.Stdout, res)
}

// readVars returns the config variables held in the JSON object file at
// path, or an empty map if path is empty.
func readVars(path string) (map[string]string, error) {
	vars := make(map[string]string)
	if path == "" {
		return vars, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal(b, &vars)
	if err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}
	return vars, nil
}

// report writes the display order and latency statistics of res to w.
func report(w io.Writer, res *result) {
	for i, poc := range res.POCs {
		fmt.Fprintf(w, "%d\tpoc=%d\tlatency=%.0f\n", i, poc, res.Latency[i])
	}
	mean, std := res.LatencyStats()
	fmt.Fprintf(w, "displayed=%d skipped=%d latency mean=%.2f std=%.2f\n", len(res.POCs), res.Skipped, mean, std)
	m := res.Metrics
	fmt.Fprintf(w, "inserted=%d removed=%d waited=%d overflows=%d\n", m.Inserted, m.Removed, m.Waited, m.Overflows)
}
