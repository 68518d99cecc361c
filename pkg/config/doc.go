// Package config loads INDI client configuration from YAML files.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding the server address with INDI_HOST and INDI_PORT
//   - Validation of ports, timeouts, BLOB modes and log levels
//   - Translating the file into a client.Config and the initial watch list
//
// Usage:
//
//	cfg, err := config.Load("indi-client.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c, err := client.New(cfg.ClientConfig(), mediator)
//	...
//	err = cfg.Apply(c)
//
// Example file:
//
//	server:
//	  host: observatory.local
//	  port: 7624
//	  connect_timeout: 5s
//	watch:
//	  - device: CCD Simulator
//	    properties: [CCD_EXPOSURE, CCD1]
//	blob:
//	  - device: CCD Simulator
//	    mode: also
//	reconnect:
//	  enabled: true
//	  initial: 1s
//	  max: 30s
//	  max_attempts: 0
//	logging:
//	  level: info
//	  protocol_log: session.ilog
package config
