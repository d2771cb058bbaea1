// Package config provides configuration loading for Homestream.
//
// Configuration is read from a YAML file, merged over hardcoded defaults,
// and finally overridden by HOMESTREAM_* environment variables. The loaded
// Config is validated before use; a service never starts on a config it
// cannot fully interpret.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	log := logging.New(cfg.Logging, version)
package config
