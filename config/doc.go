// Package config loads the process configuration: platform identity, the
// host HTTP listener, the shared NATS connection and the channel list.
//
// Files are JSON or YAML, chosen by extension. Layers are merged key by key
// onto Defaults, later layers winning; lists are replaced whole. Environment
// variables prefixed DATACHANNEL_ override a fixed set of fields:
//
//	DATACHANNEL_PLATFORM_ID
//	DATACHANNEL_HTTP_ADDR
//	DATACHANNEL_INIT_WORKERS
//	DATACHANNEL_NATS_URLS (comma separated)
//	DATACHANNEL_NATS_NAME, _USERNAME, _PASSWORD, _TOKEN
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.yaml")
//	loader.AddLayer("config/production.json")
//
//	cfg, err := loader.Load()
//	if err != nil {
//		return err
//	}
//
//	builders, err := config.BuildersFrom(cfg, registry)
//
// Each channel names its endpoints and middleware by registered kind:
//
//	channels:
//	  - id: sensors
//	    outer:
//	      kind: udp
//	      config: {listen: ":14550"}
//	    middlewares:
//	      - kind: counter
//
// A channel without an inner endpoint gets an in-process one named after
// the channel.
package config
