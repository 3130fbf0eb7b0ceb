// Package config loads the configuration for every component from struct
// defaults, an optional YAML file and environment variables, in increasing
// precedence.
//
// Environment variables use the INSTANCECACHE_ prefix and a double
// underscore between levels:
//
//	INSTANCECACHE_EVICTION__MAX_CAPACITY=5000
//	INSTANCECACHE_STORE__REDIS__ADDR=redis:6379
//	INSTANCECACHE_TXN__COMMIT_OPTION=B
//
// String values may reference the environment (${VAR}) or a secret
// (secretref:file:/run/secrets/redis); they are resolved before
// validation.
package config
