/*
 * armjit - Main process.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/arm7core/armjit/config/cpuconfig"
	"github.com/arm7core/armjit/cpu"
	"github.com/arm7core/armjit/internal/tracelog"
	"github.com/arm7core/armjit/memory"
	logger "github.com/arm7core/armjit/util/logger"
)

var Logger *slog.Logger

func main() {
	optConfig := getopt.StringLong("config", 'c', "armjit.cfg", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optImage := getopt.StringLong("image", 'i', "", "Raw binary image to load at the reset vector")
	optDebug := getopt.BoolLong("debug", 'd', "Mirror debug-level log records to stderr")
	optJIT := getopt.BoolLong("jit", 'j', "Accelerate idle loops via the block cache and optimizer")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file io.Writer
	if *optLogFile != "" {
		f, err := os.Create(*optLogFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "armjit: can't create log file:", err)
			os.Exit(1)
		}
		file = f
	}
	Logger = logger.New(file, *optDebug)
	slog.SetDefault(Logger)
	tracelog.SetLogger(Logger)

	Logger.Info("armjit started")

	cfg := cpuconfig.Reset()
	if _, err := os.Stat(*optConfig); err == nil {
		if err := cpuconfig.Load(*optConfig); err != nil {
			Logger.Error(err.Error())
			os.Exit(1)
		}
	} else {
		Logger.Info("no configuration file found, using defaults", "path", *optConfig)
	}

	if cfg.MemorySize == 0 {
		cfg.MemorySize = 32 * 1024 * 1024
	}
	mem := memory.NewFlatMemory(cfg.MemorySize)
	mem.UseTimingHints(cfg.UseMemoryTimings)

	variant := cpu.V4T
	if cfg.Variant == "V5TE" {
		variant = cpu.V5TE
	}
	core := cpu.NewCPUState(variant, mem)
	core.UseMemoryInterfaceAccessTimings(cfg.UseMemoryTimings)
	core.Log = Logger
	if *optJIT {
		core.EnableJIT()
	}

	if *optImage != "" {
		if err := loadImage(mem, *optImage, 0); err != nil {
			Logger.Error(err.Error())
			os.Exit(1)
		}
		core.ReloadPipeline(0)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		const batch = 1 << 16
		for core.State == cpu.Run {
			select {
			case <-sigChan:
				Logger.Info("shutting down")
				return
			default:
				core.Run(batch)
			}
		}
	}()

	<-done
	Logger.Info("stopped")
}

// loadImage reads a raw binary file into mem starting at base,
// byte-for-byte, the minimal "load a flat ROM image" path used in
// place of the teacher's IPL-from-device bootstrap (out of scope
// per spec.md §1: no device model).
func loadImage(mem *memory.FlatMemory, path string, base uint32) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("armjit: can't read image %q: %w", path, err)
	}
	if uint32(len(data))+base > mem.Len() {
		return fmt.Errorf("armjit: image %q (%d bytes) does not fit in %d bytes of memory", path, len(data), mem.Len())
	}
	for i, b := range data {
		mem.WriteByte(base+uint32(i), b)
	}
	return nil
}
