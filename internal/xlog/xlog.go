// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package xlog is the logging ambient of this repository, mirroring the
// teacher's log.Helper shape (Debugf/Warnf/Errorf) on top of zap instead
// of a hand-rolled leveled logger. Header validation failures are never
// logged — they are returned as *pescan.Error — and the directory
// accessors do not log either; cmd/pescan is the only caller, and it
// logs a missing directory at Warn.
package xlog

import (
	"go.uber.org/zap"
)

// Logger is the subset of *zap.SugaredLogger callers of this package
// need; callers hold a Logger rather than a concrete *zap.SugaredLogger
// so a nil-safe default can satisfy it without pulling in zap at every
// call site.
type Logger interface {
	Debugf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// nop is the zero-value default: every call is silently dropped.
// cmd/pescan uses it until its root command has built a real Logger.
type nop struct{}

func (nop) Debugf(string, ...interface{}) {}
func (nop) Warnf(string, ...interface{})  {}
func (nop) Errorf(string, ...interface{}) {}

// Nop is the shared no-op Logger.
var Nop Logger = nop{}

// sugared adapts a *zap.SugaredLogger to Logger.
type sugared struct {
	s *zap.SugaredLogger
}

func (l sugared) Debugf(template string, args ...interface{}) { l.s.Debugf(template, args...) }
func (l sugared) Warnf(template string, args ...interface{})  { l.s.Warnf(template, args...) }
func (l sugared) Errorf(template string, args ...interface{}) { l.s.Errorf(template, args...) }

// New builds a Logger backed by zap's development config, which is
// console-encoded for CLI readability. verbose keeps that config's Debug
// level; otherwise only Warn and above are emitted, matching the
// teacher's default verbosity.
func New(verbose bool) (Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return sugared{s: z.Sugar()}, nil
}
