/*
DESCRIPTION
  config.go provides the DPB configuration and its validation.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package dpb

import (
	"errors"

	"github.com/ausocean/utils/logging"
)

// ErrNoLogger is returned by Validate when the Config has no Logger.
var ErrNoLogger = errors.New("nil logger")

// Config provides the parameters of a DPB.
type Config struct {
	// Logger holds an implementation of the Logger interface as defined in
	// github.com/ausocean/utils/logging. This must be set for the DPB to work
	// correctly.
	Logger logging.Logger

	// LogLevel is the DPB logging verbosity level.
	// Valid values are defined by enums from the logger package: logging.Debug,
	// logging.Info, logging.Warning logging.Error, logging.Fatal.
	LogLevel int8

	// Mode is the DPB operating mode, ModeNormal or ModeLowRef.
	Mode Mode

	// NumRef is the reference bound applied by AVCCleanup. It may be changed
	// later with SetNumRef, typically from the SPS max_num_ref_frames.
	NumRef uint8

	// LowLatency makes picture managers bump every picture for output as soon
	// as it is decoded, without waiting for reordering.
	LowLatency bool
}

// Validate checks for any errors in the config fields and defaults settings
// if particular parameters have not been defined.
func (c *Config) Validate() error {
	if c.Logger == nil {
		return ErrNoLogger
	}
	for _, v := range Variables {
		if v.Validate != nil {
			v.Validate(c)
		}
	}
	return nil
}

// Update takes a map of configuration variable names and their corresponding
// values, parses the string values and sets the config struct fields as
// appropriate.
func (c *Config) Update(vars map[string]string) {
	for _, value := range Variables {
		if v, ok := vars[value.Name]; ok && value.Update != nil {
			value.Update(c, v)
		}
	}
}

// LogInvalidField logs that the named field was bad or unset and has been
// given the default value def.
func (c *Config) LogInvalidField(name string, def interface{}) {
	c.Logger.Info(pkg+name+" bad or unset, defaulting", name, def)
}
