/*
DESCRIPTION
  variables.go contains a list of structs that provide a variable Name, type in
  a string format, a function for updating the variable in the Config struct
  from a string, and finally, a validation function to check the validity of the
  corresponding field value in the Config.

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
	"fmt"
	"strconv"
	"strings"

	"github.com/ausocean/utils/logging"
)

// Config map Keys.
const (
	KeyLogging    = "logging"
	KeyMode       = "Mode"
	KeyNumRef     = "NumRef"
	KeyLowLatency = "LowLatency"
)

// Config map parameter types.
const (
	typeUint = "uint"
	typeBool = "bool"
)

// Default variable values.
const (
	defaultVerbosity = logging.Error
	defaultMode      = ModeNormal
	defaultNumRef    = MaxRef
)

// Variables describes the variables that can be used for DPB configuration.
// These structs provide the name and type of variable, a function for updating
// this variable in a Config, and a function for validating the value of the variable.
var Variables = []struct {
	Name     string
	Type     string
	Update   func(*Config, string)
	Validate func(*Config)
}{
	{
		Name: KeyLogging,
		Type: "enum:Debug,Info,Warning,Error,Fatal",
		Update: func(c *Config, v string) {
			switch v {
			case "Debug":
				c.LogLevel = logging.Debug
			case "Info":
				c.LogLevel = logging.Info
			case "Warning":
				c.LogLevel = logging.Warning
			case "Error":
				c.LogLevel = logging.Error
			case "Fatal":
				c.LogLevel = logging.Fatal
			default:
				c.Logger.Warning(pkg+"invalid Logging param", "value", v)
			}
		},
		Validate: func(c *Config) {
			switch c.LogLevel {
			case logging.Debug, logging.Info, logging.Warning, logging.Error, logging.Fatal:
			default:
				c.LogInvalidField("LogLevel", defaultVerbosity)
				c.LogLevel = defaultVerbosity
			}
		},
	},
	{
		Name: KeyMode,
		Type: "enum:Normal,LowRef",
		Update: func(c *Config, v string) {
			c.Mode = Mode(parseEnum(
				KeyMode,
				v,
				map[string]uint8{
					"normal": uint8(ModeNormal),
					"lowref": uint8(ModeLowRef),
				},
				c,
			))
		},
		Validate: func(c *Config) {
			switch c.Mode {
			case ModeNormal, ModeLowRef:
			default:
				c.LogInvalidField(KeyMode, defaultMode)
				c.Mode = defaultMode
			}
		},
	},
	{
		Name:   KeyNumRef,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.NumRef = uint8(parseUint(KeyNumRef, v, c)) },
		Validate: func(c *Config) {
			if c.NumRef == 0 || c.NumRef > MaxRef {
				c.LogInvalidField(KeyNumRef, defaultNumRef)
				c.NumRef = defaultNumRef
			}
		},
	},
	{
		Name:   KeyLowLatency,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.LowLatency = parseBool(KeyLowLatency, v, c) },
	},
}

func parseUint(n, v string, c *Config) uint {
	_v, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		c.Logger.Warning(fmt.Sprintf(pkg+"expected unsigned int for param %s", n), "value", v)
	}
	return uint(_v)
}

func parseBool(n, v string, c *Config) (b bool) {
	switch strings.ToLower(v) {
	case "true":
		b = true
	case "false":
		b = false
	default:
		c.Logger.Warning(fmt.Sprintf(pkg+"expect bool for param %s", n), "value", v)
	}
	return
}

func parseEnum(n, v string, enums map[string]uint8, c *Config) uint8 {
	_v, ok := enums[strings.ToLower(v)]
	if !ok {
		c.Logger.Warning(fmt.Sprintf(pkg+"invalid value for %s param", n), "value", v)
	}
	return _v
}
